package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devswarm/devswarm/pkg/bus"
)

type fakeQueue struct {
	mu       sync.Mutex
	groupErr error
	batches  [][]bus.Goal
	acked    []string
}

func (q *fakeQueue) EnsureConsumerGroup(ctx context.Context) error { return q.groupErr }

func (q *fakeQueue) DequeueGoals(ctx context.Context, consumer string, block time.Duration, count int64) ([]bus.Goal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		// Queue drained; emulate a blocking read until cancellation.
		q.mu.Unlock()
		<-ctx.Done()
		q.mu.Lock()
		return nil, ctx.Err()
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch, nil
}

func (q *fakeQueue) AckGoal(ctx context.Context, entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, entryID)
	return nil
}

func (q *fakeQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type fakeOrch struct {
	mu   sync.Mutex
	err  error
	runs []string
}

func (o *fakeOrch) Run(ctx context.Context, goal bus.Goal) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, goal.Goal)
	return o.err
}

func (o *fakeOrch) ranGoals() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.runs...)
}

type fakeActivity struct {
	mu      sync.Mutex
	actions []string
}

func (a *fakeActivity) LogActivity(ctx context.Context, agentID, action string, details any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeActivity) logged() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

func newTestWorker(q Queue, o Orchestrator, a ActivityLogger) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(q, o, a, "test-consumer", logger)
}

func runUntilDrained(t *testing.T, w *Worker, q *fakeQueue, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Run(ctx))
		close(done)
	}()

	require.Eventually(t, func() bool { return len(q.ackedIDs()) == want },
		5*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestWorkerAcksSuccessfulGoals(t *testing.T) {
	q := &fakeQueue{batches: [][]bus.Goal{{
		{EntryID: "1-0", Goal: "research patterns"},
		{EntryID: "1-1", Goal: "write summary"},
	}}}
	orch := &fakeOrch{}
	activity := &fakeActivity{}

	runUntilDrained(t, newTestWorker(q, orch, activity), q, 2)

	assert.Equal(t, []string{"research patterns", "write summary"}, orch.ranGoals())
	assert.Equal(t, []string{"1-0", "1-1"}, q.ackedIDs())
	assert.Empty(t, activity.logged())
}

func TestWorkerAcksFailedGoalsAndLogsActivity(t *testing.T) {
	q := &fakeQueue{batches: [][]bus.Goal{{
		{EntryID: "2-0", Goal: "doomed goal", AssignedTo: "coder"},
	}}}
	orch := &fakeOrch{err: errors.New("engine down")}
	activity := &fakeActivity{}

	runUntilDrained(t, newTestWorker(q, orch, activity), q, 1)

	// A failed goal is still acknowledged; the producer owns retries.
	assert.Equal(t, []string{"2-0"}, q.ackedIDs())
	assert.Equal(t, []string{"task_queue_error"}, activity.logged())
}

func TestWorkerFailsWithoutConsumerGroup(t *testing.T) {
	q := &fakeQueue{groupErr: errors.New("bus unavailable")}
	w := newTestWorker(q, &fakeOrch{}, &fakeActivity{})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer group")
}

func TestWorkerStopsOnCancel(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, &fakeOrch{}, &fakeActivity{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		assert.NoError(t, w.Run(ctx))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
