package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devswarm/devswarm/pkg/bus"
	"github.com/devswarm/devswarm/pkg/models"
)

// bridgeStore is a mutable in-memory store safe for concurrent reads from
// the bridge goroutine.
type bridgeStore struct {
	mu    sync.Mutex
	state models.FullState
}

func (s *bridgeStore) GetFullState(ctx context.Context, messagesLimit int) (models.FullState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *bridgeStore) Version(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Version, nil
}

func (s *bridgeStore) bump(mutate func(*models.FullState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	s.state.Version++
}

// fakeEvents fails the first failures subscribe attempts, then hands out
// the configured subscription.
type fakeEvents struct {
	mu       sync.Mutex
	failures int
	sub      *bus.Subscription
}

func (f *fakeEvents) SubscribeEvents(ctx context.Context) (*bus.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("bus unavailable")
	}
	if f.sub == nil {
		return nil, errors.New("bus unavailable")
	}
	return f.sub, nil
}

func startBridge(t *testing.T, st *bridgeStore, events *fakeEvents, heartbeat time.Duration) <-chan []byte {
	t.Helper()

	frames := make(chan []byte, 32)
	b := NewBridge(NewAssembler(st, 20), st.Version, events,
		func(payload []byte) { frames <- payload }, heartbeat, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return frames
}

func frameVersion(t *testing.T, payload []byte) int64 {
	t.Helper()
	var frame struct {
		Type    string `json:"type"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(payload, &frame))
	require.Equal(t, models.FrameStateUpdate, frame.Type)
	return frame.Version
}

func waitFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-frames:
		return payload
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast frame")
		return nil
	}
}

func assertQuiet(t *testing.T, frames <-chan []byte) {
	t.Helper()
	select {
	case payload := <-frames:
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeHeartbeatOnly(t *testing.T) {
	st := &bridgeStore{state: models.FullState{Version: 1}}
	events := &fakeEvents{} // every subscribe fails
	frames := startBridge(t, st, events, 20*time.Millisecond)

	// Startup snapshot.
	assert.EqualValues(t, 1, frameVersion(t, waitFrame(t, frames)))

	// With no subscription the heartbeat alone must pick up changes.
	st.bump(func(s *models.FullState) {
		s.Tasks = append(s.Tasks, models.Task{ID: "t1", Title: "Build"})
	})
	assert.EqualValues(t, 2, frameVersion(t, waitFrame(t, frames)))

	// Unchanged version, no redundant pushes.
	assertQuiet(t, frames)
}

func TestBridgeForwardsDeltasVerbatim(t *testing.T) {
	st := &bridgeStore{state: models.FullState{Version: 1}}
	sub := &bus.Subscription{
		StateChanged: make(chan struct{}, 1),
		AgentEvents:  make(chan []byte, 8),
	}
	frames := startBridge(t, st, &fakeEvents{sub: sub}, time.Hour)

	waitFrame(t, frames) // startup snapshot

	delta := []byte(`{"type":"DELTA_UPDATE","category":"agents","id":"coder","data":{}}`)
	sub.AgentEvents <- delta
	assert.Equal(t, string(delta), string(waitFrame(t, frames)))

	// A state-changed signal with a moved version triggers a snapshot.
	st.bump(func(s *models.FullState) {})
	sub.StateChanged <- struct{}{}
	assert.EqualValues(t, 2, frameVersion(t, waitFrame(t, frames)))

	// A redundant signal with an unchanged version does not.
	sub.StateChanged <- struct{}{}
	assertQuiet(t, frames)
}

func TestBridgeResubscribesAfterOutage(t *testing.T) {
	st := &bridgeStore{state: models.FullState{Version: 1}}
	sub := &bus.Subscription{
		StateChanged: make(chan struct{}, 1),
		AgentEvents:  make(chan []byte, 8),
	}
	// The initial subscribe fails; the background retry then succeeds.
	events := &fakeEvents{failures: 1, sub: sub}
	frames := startBridge(t, st, events, 50*time.Millisecond)

	waitFrame(t, frames) // startup snapshot

	// Once the subscription is restored, deltas flow without a restart.
	delta := []byte(`{"type":"DELTA_UPDATE","category":"tasks","id":"t1","data":{}}`)
	require.Eventually(t, func() bool {
		select {
		case sub.AgentEvents <- delta:
		default:
		}
		select {
		case payload := <-frames:
			return string(payload) == string(delta)
		default:
			return false
		}
	}, 10*time.Second, 20*time.Millisecond)
}
