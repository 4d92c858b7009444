package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/bus"
)

// enqueueGoalHandler handles POST /api/goals: append a goal to the durable
// task queue for the worker pool.
func (s *Server) enqueueGoalHandler(c *echo.Context) error {
	if !s.queue.Available() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "task queue unavailable")
	}

	var goal bus.Goal
	if err := json.NewDecoder(c.Request().Body).Decode(&goal); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if goal.Goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal is required")
	}

	if err := s.queue.EnqueueGoal(c.Request().Context(), goal); err != nil {
		s.logger.Error("Failed to enqueue goal", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue goal")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}
