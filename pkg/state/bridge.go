package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devswarm/devswarm/pkg/bus"
	"github.com/devswarm/devswarm/pkg/metrics"
)

// EventSource yields a live bus subscription, or an error when the bus is
// degraded. Implemented by *bus.Client.
type EventSource interface {
	SubscribeEvents(ctx context.Context) (*bus.Subscription, error)
}

// Bridge connects bus events and the poll heartbeat to hub broadcasts. It
// tracks the last version it pushed and broadcasts a fresh snapshot
// whenever the stored version moves, from either signal source. With no
// subscription it degrades to heartbeat-only polling and keeps retrying
// the subscription in the background.
type Bridge struct {
	broadcast func([]byte)
	snapshot  func(ctx context.Context) ([]byte, int64, error)
	version   func(ctx context.Context) (int64, error)
	events    EventSource
	heartbeat time.Duration
	logger    *slog.Logger

	// lastVersion starts below any stored version so the first comparison
	// always pushes.
	lastVersion int64
}

func NewBridge(assembler *Assembler, version func(ctx context.Context) (int64, error),
	events EventSource, broadcast func([]byte), heartbeat time.Duration, logger *slog.Logger) *Bridge {
	return &Bridge{
		broadcast:   broadcast,
		snapshot:    assembler.Snapshot,
		version:     version,
		events:      events,
		heartbeat:   heartbeat,
		logger:      logger,
		lastVersion: -1,
	}
}

// Run drives the bridge until the context ends. It always begins with one
// snapshot push so freshly started replicas converge before any signal
// arrives.
func (b *Bridge) Run(ctx context.Context) {
	b.pushSnapshot(ctx)

	subCh := make(chan *bus.Subscription, 1)
	sub, err := b.events.SubscribeEvents(ctx)
	if err != nil {
		b.logger.Warn("Event subscription unavailable, polling only", "error", err)
		go b.resubscribe(ctx, subCh)
	}

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		// Nil channels when unsubscribed: those select arms block forever
		// and the heartbeat carries the loop.
		var stateCh <-chan struct{}
		var eventCh <-chan []byte
		if sub != nil {
			stateCh = sub.StateChanged
			eventCh = sub.AgentEvents
		}

		select {
		case <-ctx.Done():
			if sub != nil {
				_ = sub.Close()
			}
			return

		case <-ticker.C:
			b.checkVersion(ctx)

		case newSub := <-subCh:
			sub = newSub
			b.logger.Info("Event subscription restored")
			// Catch up on anything that moved while polling only.
			b.checkVersion(ctx)

		case _, ok := <-stateCh:
			if !ok {
				sub = b.dropSubscription(ctx, sub, subCh)
				continue
			}
			b.checkVersion(ctx)

		case payload, ok := <-eventCh:
			if !ok {
				sub = b.dropSubscription(ctx, sub, subCh)
				continue
			}
			// Delta frames are forwarded untouched; clients reconcile any
			// ordering gaps from the next snapshot.
			b.broadcast(payload)
		}
	}
}

func (b *Bridge) dropSubscription(ctx context.Context, sub *bus.Subscription, subCh chan *bus.Subscription) *bus.Subscription {
	b.logger.Warn("Event subscription lost, polling only")
	_ = sub.Close()
	go b.resubscribe(ctx, subCh)
	return nil
}

// resubscribe retries the bus subscription with exponential backoff capped
// at the heartbeat interval, since the heartbeat already bounds staleness.
func (b *Bridge) resubscribe(ctx context.Context, subCh chan<- *bus.Subscription) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = b.heartbeat
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}

		sub, err := b.events.SubscribeEvents(ctx)
		if err != nil {
			continue
		}
		select {
		case subCh <- sub:
		case <-ctx.Done():
			_ = sub.Close()
		}
		return
	}
}

// checkVersion polls the stored version and pushes a snapshot only when it
// moved, so redundant signals and quiet heartbeats stay cheap.
func (b *Bridge) checkVersion(ctx context.Context) {
	version, err := b.version(ctx)
	if err != nil {
		b.logger.Warn("Failed to poll state version", "error", err)
		return
	}
	if version == b.lastVersion {
		return
	}
	b.pushSnapshot(ctx)
}

func (b *Bridge) pushSnapshot(ctx context.Context) {
	payload, version, err := b.snapshot(ctx)
	if err != nil {
		b.logger.Error("Failed to assemble state snapshot", "error", err)
		return
	}
	b.lastVersion = version
	metrics.SnapshotPushes.Inc()
	b.broadcast(payload)
}
