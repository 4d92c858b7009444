package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/models"
	"github.com/devswarm/devswarm/pkg/store"
)

// listAgentsHandler handles GET /api/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	agents, err := s.store.ListAgents(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, agents)
}

// getAgentHandler handles GET /api/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	agent, err := s.store.GetAgent(c.Request().Context(), agentID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// patchAgentHandler handles PATCH /api/agents/:id.
func (s *Server) patchAgentHandler(c *echo.Context) error {
	agentID := c.Param("id")
	if agentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}

	var req models.AgentPatchRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Status != nil && !models.ValidAgentStatus(*req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+*req.Status)
	}
	if req.CurrentRoom != nil && !models.ValidRoom(*req.CurrentRoom) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid room: "+*req.CurrentRoom)
	}

	ctx := c.Request().Context()
	agent, err := s.store.UpdateAgent(ctx, agentID, store.AgentPatch{
		CurrentRoom:  req.CurrentRoom,
		Status:       req.Status,
		CurrentTask:  req.CurrentTask,
		ThoughtChain: req.ThoughtChain,
	})
	if err != nil {
		return mapStoreError(err)
	}

	s.bumpAndPublish(ctx, models.CategoryAgents, agent.ID, agent)
	if err := s.store.LogActivity(ctx, agent.ID, "agent_updated", map[string]any{
		"status": agent.Status,
		"room":   agent.CurrentRoom,
	}); err != nil {
		s.logger.Warn("Failed to record activity", "action", "agent_updated", "error", err)
	}

	return c.JSON(http.StatusOK, agent)
}
