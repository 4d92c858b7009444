package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// costsHandler handles GET /api/costs.
func (s *Server) costsHandler(c *echo.Context) error {
	costs, err := s.store.AgentCosts(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, costs)
}

// recordCostHandler handles POST /api/costs: the orchestration engine reports
// per-agent token spend after each run. Costs never touch the broadcast path.
func (s *Server) recordCostHandler(c *echo.Context) error {
	var req struct {
		AgentID      string  `json:"agent_id"`
		InputTokens  int     `json:"input_tokens"`
		OutputTokens int     `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.AgentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_id is required")
	}

	ctx := c.Request().Context()
	if err := s.store.RecordCost(ctx, req.AgentID, req.InputTokens, req.OutputTokens, req.CostUSD); err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "recorded"})
}

// activityHandler handles GET /api/activity.
func (s *Server) activityHandler(c *echo.Context) error {
	limit := clampedLimit(c.QueryParam("limit"), 100, 500)
	entries, err := s.store.ActivityLog(c.Request().Context(), limit)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, entries)
}
