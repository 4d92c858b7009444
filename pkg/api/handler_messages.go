package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/models"
)

// listMessagesHandler handles GET /api/messages.
func (s *Server) listMessagesHandler(c *echo.Context) error {
	limit := clampedLimit(c.QueryParam("limit"), 50, 200)
	messages, err := s.store.RecentMessages(c.Request().Context(), limit, c.QueryParam("agent_id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

// createMessageHandler handles POST /api/messages.
func (s *Server) createMessageHandler(c *echo.Context) error {
	var req models.MessageCreateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	ctx := c.Request().Context()
	message, err := s.store.CreateMessage(ctx, req)
	if err != nil {
		return mapStoreError(err)
	}

	s.bumpAndPublish(ctx, models.CategoryMessages, message.ID, message)
	return c.JSON(http.StatusCreated, message)
}

// clampedLimit parses a limit query parameter, applying the default when
// absent or unparsable and clamping to [1, max].
func clampedLimit(raw string, def, max int) int {
	limit := def
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > max {
		limit = max
	}
	return limit
}
