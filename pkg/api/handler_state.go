package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/models"
)

// getStateHandler handles GET /api/state. The body is byte-identical to a
// STATE_UPDATE frame, so HTTP pollers and WebSocket clients share a parser.
func (s *Server) getStateHandler(c *echo.Context) error {
	payload, _, err := s.assembler.Snapshot(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.Blob(http.StatusOK, "application/json", payload)
}

// overrideStateHandler handles POST /api/state/override: an operator-level
// bulk reset of every agent's status and room.
func (s *Server) overrideStateHandler(c *echo.Context) error {
	var req models.StateOverrideRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.GlobalStatus == "" || req.DefaultRoom == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "global_status and default_room are required")
	}
	if !models.ValidAgentStatus(req.GlobalStatus) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+req.GlobalStatus)
	}
	if !models.ValidRoom(req.DefaultRoom) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid room: "+req.DefaultRoom)
	}

	ctx := c.Request().Context()
	if err := s.store.BulkUpdateAgents(ctx, req.GlobalStatus, req.DefaultRoom); err != nil {
		return mapStoreError(err)
	}

	// A bulk change touches every agent; per-entity deltas would be noise,
	// so clients converge from the snapshot instead.
	if _, err := s.store.BumpVersion(ctx); err != nil {
		s.logger.Warn("Failed to bump state version", "error", err)
	}
	s.pub.NotifyStateChanged(ctx)

	if err := s.store.LogActivity(ctx, "", "state_override", map[string]any{
		"status": req.GlobalStatus,
		"room":   req.DefaultRoom,
	}); err != nil {
		s.logger.Warn("Failed to record activity", "action", "state_override", "error", err)
	}

	if req.Message != "" {
		message, err := s.store.CreateMessage(ctx, models.MessageCreateRequest{
			FromAgent:   "orchestrator",
			Content:     req.Message,
			MessageType: "chat",
		})
		if err != nil {
			s.logger.Warn("Failed to record override message", "error", err)
		} else {
			s.bumpAndPublish(ctx, models.CategoryMessages, message.ID, message)
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
