package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/store"
)

// mapStoreError maps store-layer errors to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}

	// Unexpected error
	slog.Error("Unexpected store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
