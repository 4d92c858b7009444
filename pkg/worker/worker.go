// Package worker consumes goals from the durable task queue and hands them
// to the orchestration engine.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devswarm/devswarm/pkg/bus"
	"github.com/devswarm/devswarm/pkg/metrics"
)

const (
	// blockInterval bounds each queue read so the worker notices
	// cancellation promptly.
	blockInterval = 5 * time.Second
	// batchSize caps goals pulled per read.
	batchSize = 10
)

// Queue is the stream-consumer slice of the bus the worker needs.
type Queue interface {
	EnsureConsumerGroup(ctx context.Context) error
	DequeueGoals(ctx context.Context, consumer string, block time.Duration, count int64) ([]bus.Goal, error)
	AckGoal(ctx context.Context, entryID string) error
}

// Orchestrator runs one goal to completion.
type Orchestrator interface {
	Run(ctx context.Context, goal bus.Goal) error
}

// ActivityLogger records queue failures for the audit trail. Implemented by
// the store.
type ActivityLogger interface {
	LogActivity(ctx context.Context, agentID, action string, details any) error
}

// Worker is one queue consumer. Multiple workers (here or in other
// processes) share the consumer group, so each goal is delivered to exactly
// one of them.
type Worker struct {
	queue    Queue
	orch     Orchestrator
	activity ActivityLogger
	logger   *slog.Logger
	consumer string
}

func New(queue Queue, orch Orchestrator, activity ActivityLogger, consumer string, logger *slog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		orch:     orch,
		activity: activity,
		logger:   logger,
		consumer: consumer,
	}
}

// Run consumes goals until the context ends. It fails fast when the
// consumer group cannot be created, since without it nothing will ever be
// delivered.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensuring consumer group: %w", err)
	}
	w.logger.Info("Task queue worker started", "consumer", w.consumer)

	for {
		if ctx.Err() != nil {
			return nil
		}

		goals, err := w.queue.DequeueGoals(ctx, w.consumer, blockInterval, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("Queue read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, goal := range goals {
			w.process(ctx, goal)
		}
	}
}

// process runs one goal and always acknowledges it. Orchestration failures
// are terminal here: redelivery would just fail again, so the producer owns
// retries and the failure lands in the activity log.
func (w *Worker) process(ctx context.Context, goal bus.Goal) {
	if err := w.orch.Run(ctx, goal); err != nil {
		w.logger.Error("Goal orchestration failed",
			"entry_id", goal.EntryID, "goal", goal.Goal, "error", err)
		metrics.GoalsProcessed.WithLabelValues("error").Inc()
		if logErr := w.activity.LogActivity(ctx, goal.AssignedTo, "task_queue_error", map[string]any{
			"goal":  goal.Goal,
			"error": err.Error(),
		}); logErr != nil {
			w.logger.Warn("Failed to record queue failure", "error", logErr)
		}
	} else {
		metrics.GoalsProcessed.WithLabelValues("ok").Inc()
	}

	if err := w.queue.AckGoal(ctx, goal.EntryID); err != nil {
		w.logger.Warn("Failed to ack goal", "entry_id", goal.EntryID, "error", err)
	}
}
