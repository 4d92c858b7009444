package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, buffer int) *Hub {
	t.Helper()
	h := New(buffer, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	h := startHub(t, 1)

	slow := &client{id: "slow", send: make(chan []byte, 1)}
	fast := &client{id: "fast", send: make(chan []byte, 8)}
	h.register <- slow
	h.register <- fast
	require.Eventually(t, func() bool { return h.ClientCount() == 2 },
		time.Second, 5*time.Millisecond)

	// First frame fills the slow client's queue; the second finds it full
	// and evicts.
	h.Broadcast([]byte(`{"n":1}`))
	h.Broadcast([]byte(`{"n":2}`))

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The surviving client got both frames.
	assert.Equal(t, `{"n":1}`, string(<-fast.send))
	assert.Equal(t, `{"n":2}`, string(<-fast.send))

	// The evicted client keeps its queued frame, then sees the queue
	// closed exactly once.
	assert.Equal(t, `{"n":1}`, string(<-slow.send))
	_, open := <-slow.send
	assert.False(t, open)
}

func TestUnregisterUnknownClientIsHarmless(t *testing.T) {
	h := startHub(t, 1)

	c := &client{id: "ghost", send: make(chan []byte, 1)}
	h.unregister <- c
	h.Broadcast([]byte(`{}`))
	assert.Equal(t, 0, h.ClientCount())
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	h := New(1, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.Broadcast([]byte(`{}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked after hub stopped")
	}
}

func TestFramesArriveStandalone(t *testing.T) {
	h := startHub(t, 8)
	initial := []byte(`{"type":"STATE_UPDATE","agents":{},"version":1}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if !assert.NoError(t, err) {
			return
		}
		h.Handle(r.Context(), conn, initial, Timeouts{
			WriteWait: time.Second,
			PongWait:  10 * time.Second,
		})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	readFrame := func() map[string]any {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)

		// Each frame must parse standalone.
		var frame map[string]any
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	}

	// The snapshot is always the first frame.
	first := readFrame()
	assert.Equal(t, "STATE_UPDATE", first["type"])

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	h.Broadcast([]byte(`{"type":"DELTA_UPDATE","category":"agents","id":"a1","data":{}}`))
	h.Broadcast([]byte(`{"type":"DELTA_UPDATE","category":"tasks","id":"t1","data":{}}`))

	second := readFrame()
	assert.Equal(t, "DELTA_UPDATE", second["type"])
	assert.Equal(t, "agents", second["category"])

	third := readFrame()
	assert.Equal(t, "DELTA_UPDATE", third["type"])
	assert.Equal(t, "tasks", third["category"])
}
