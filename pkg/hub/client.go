package hub

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// maxMessageSize bounds inbound client frames. Clients only ever send small
// control payloads; anything bigger is a misbehaving peer.
const maxMessageSize = 8 * 1024

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Timeouts are the per-connection deadlines for the client pumps.
type Timeouts struct {
	// WriteWait bounds a single frame write.
	WriteWait time.Duration
	// PongWait is how long the connection may sit silent before a failed
	// ping tears it down. Pings go out at 9/10 of this interval.
	PongWait time.Duration
}

// Handle runs the pumps for one upgraded connection and blocks until it
// closes. The initial payload, when non-nil, is queued before any broadcast
// so a new client always starts from a coherent snapshot.
func (h *Hub) Handle(ctx context.Context, conn *websocket.Conn, initial []byte, t Timeouts) {
	conn.SetReadLimit(maxMessageSize)

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	if initial != nil {
		c.send <- initial
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx, cancel, t)

	// Read loop. Dashboard clients are receive-only: frames are drained to
	// keep control-frame processing alive, then discarded. A read error is
	// the disconnect signal.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-h.done:
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// writePump drains the send queue onto the wire, one frame per message, and
// pings during quiet stretches. It exits when the queue closes (eviction or
// hub shutdown) or a write fails.
func (c *client) writePump(ctx context.Context, cancel context.CancelFunc, t Timeouts) {
	// A failed write or ping must also stop the read loop.
	defer cancel()

	pingPeriod := t.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
				return
			}
			if err := c.write(ctx, payload, t.WriteWait); err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, t.PongWait)
			err := c.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *client) write(ctx context.Context, payload []byte, writeWait time.Duration) error {
	writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
	defer writeCancel()
	return c.conn.Write(writeCtx, websocket.MessageText, payload)
}
