package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
)

// recoverMiddleware converts handler panics into 500s instead of killing
// the connection.
func recoverMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Handler panicked",
						"path", c.Request().URL.Path, "panic", fmt.Sprint(r))
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)

			// Response() is typed http.ResponseWriter; the written status
			// lives on the concrete *echo.Response behind it.
			status := 0
			if resp, ok := c.Response().(*echo.Response); ok {
				status = resp.Status
			}
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}
			logger.Info("HTTP request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration", time.Since(start))
			return err
		}
	}
}

// corsMiddleware answers preflights and marks responses for the configured
// browser origins. Requests from unlisted origins pass through without CORS
// headers; the browser enforces the rest.
func corsMiddleware(origins []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			h := c.Response().Header()
			h.Add("Vary", "Origin")

			if origin != "" && allowed[origin] {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if c.Request().Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "300")
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// bearerAuth requires the configured token on protected routes. An empty
// token disables auth for local development.
func bearerAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if token == "" {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			got, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || got != token {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
			}
			return next(c)
		}
	}
}

// requestTimeout caps each handler's context. Store calls inherit the
// deadline, so a wedged query cannot hold a connection forever. Applied to
// the API group only; the WebSocket session must outlive any deadline.
func requestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
