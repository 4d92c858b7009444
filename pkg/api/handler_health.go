package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health and GET /api/health.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"service":  "devswarm",
			"database": "error: " + err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "devswarm",
		"database": "connected",
	})
}
