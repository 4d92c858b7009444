package api

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// registerProxyRoutes forwards the orchestration endpoints to the external
// engine. Without a configured engine the routes answer 503.
func (s *Server) registerProxyRoutes(g *echo.Group) error {
	if s.cfg.AIEngineURL == "" {
		unavailable := func(c *echo.Context) error {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "orchestration engine not configured")
		}
		g.POST("/trigger", unavailable)
		g.POST("/simulate/*", unavailable)
		g.GET("/mcp/tools", unavailable)
		return nil
	}

	target, err := url.Parse(s.cfg.AIEngineURL)
	if err != nil {
		return fmt.Errorf("parsing orchestration engine url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	// The engine answers with its own permissive CORS headers. Stripping
	// them here keeps this gateway's CORS policy the only one the browser
	// ever sees.
	proxy.ModifyResponse = func(resp *http.Response) error {
		for name := range resp.Header {
			if strings.HasPrefix(name, "Access-Control-Allow-") {
				resp.Header.Del(name)
			}
		}
		return nil
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Warn("Orchestration proxy failed", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"orchestration engine unavailable"}`))
	}

	forward := func(c *echo.Context) error {
		proxy.ServeHTTP(c.Response(), c.Request())
		return nil
	}
	g.POST("/trigger", forward)
	g.POST("/simulate/*", forward)
	g.GET("/mcp/tools", forward)
	return nil
}
