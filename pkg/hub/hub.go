// Package hub fans broadcast frames out to WebSocket clients. A single run
// goroutine owns the client set; clients join and leave through channels,
// never by touching the map.
package hub

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/devswarm/devswarm/pkg/metrics"
)

// Hub is the broadcast fan-out point. One instance per process.
type Hub struct {
	logger     *slog.Logger
	sendBuffer int

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	// clients is owned exclusively by Run.
	clients map[*client]struct{}

	// count mirrors len(clients) for readers outside the run loop.
	count atomic.Int64

	done chan struct{}
}

// New creates a hub whose clients each get a send queue of sendBuffer frames.
func New(sendBuffer int, logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		sendBuffer: sendBuffer,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes joins, leaves and broadcasts until the context ends. Exactly
// one Run per hub.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			metrics.ConnectedClients.Set(float64(len(h.clients)))
			h.logger.Debug("WebSocket client joined", "client_id", c.id, "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case payload := <-h.broadcast:
			metrics.BroadcastFrames.Inc()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// A full queue means the client is not draining frames.
					// Evicting it protects every other client's latency.
					h.logger.Warn("Evicting slow WebSocket client",
						"client_id", c.id, "queued", len(c.send))
					metrics.EvictedClients.Inc()
					h.drop(c)
				}
			}
		}
	}
}

// drop removes a client from the set and closes its queue, which stops its
// write pump. Run-loop only.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
	metrics.ConnectedClients.Set(float64(len(h.clients)))
}

// Broadcast queues one frame for every connected client. Safe from any
// goroutine; a no-op once the hub has stopped.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
