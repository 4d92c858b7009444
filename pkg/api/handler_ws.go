package api

import (
	"strings"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/devswarm/devswarm/pkg/hub"
)

// wsHandler handles GET /ws: upgrade, push the current snapshot, then hand
// the connection to the hub.
func (s *Server) wsHandler(c *echo.Context) error {
	opts := &websocket.AcceptOptions{
		OriginPatterns: originHostPatterns(s.cfg.AllowedOrigins),
	}
	if len(opts.OriginPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		return err
	}

	// A failed snapshot read is not fatal: the client connects empty and
	// the next heartbeat push fills it in.
	initial, _, err := s.assembler.Snapshot(c.Request().Context())
	if err != nil {
		s.logger.Warn("Failed to assemble initial snapshot", "error", err)
		initial = nil
	}

	// Blocks until the connection closes.
	s.hub.Handle(c.Request().Context(), conn, initial, hub.Timeouts{
		WriteWait: s.cfg.WriteWait,
		PongWait:  s.cfg.PongWait,
	})
	return nil
}

// originHostPatterns reduces configured origins to the host patterns the
// upgrade check matches against.
func originHostPatterns(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		host := o
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts
}
