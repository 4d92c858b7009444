package state

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/devswarm/devswarm/pkg/models"
)

// EventBus is the publishing slice of the bus the publisher needs.
type EventBus interface {
	Available() bool
	PublishAgentEvent(ctx context.Context, payload []byte) error
	PublishStateChanged(ctx context.Context) error
}

// Publisher emits delta frames and version-change signals after durable
// mutations. All methods are best effort: the mutation already committed,
// so failures here are logged and swallowed, and the poll heartbeat covers
// whatever the bus dropped.
type Publisher struct {
	bus    EventBus
	logger *slog.Logger

	// degraded flips on the first unavailable publish so each outage is
	// logged once, not per mutation.
	degraded atomic.Bool
}

func NewPublisher(bus EventBus, logger *slog.Logger) *Publisher {
	return &Publisher{bus: bus, logger: logger}
}

// PublishDelta broadcasts one entity change as a DELTA_UPDATE frame and then
// signals the version change. Data must be the full current entity so
// clients can merge by replacement.
func (p *Publisher) PublishDelta(ctx context.Context, category, id string, data any) {
	if !p.noteAvailability() {
		return
	}

	frame := models.DeltaFrame{
		Type:     models.FrameDeltaUpdate,
		Category: category,
		ID:       id,
		Data:     data,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		p.logger.Error("Failed to marshal delta frame", "category", category, "id", id, "error", err)
		return
	}

	if err := p.bus.PublishAgentEvent(ctx, payload); err != nil {
		p.logger.Warn("Failed to publish delta frame", "category", category, "id", id, "error", err)
	}
	if err := p.bus.PublishStateChanged(ctx); err != nil {
		p.logger.Warn("Failed to signal state change", "error", err)
	}
}

// NotifyStateChanged signals a version bump without an accompanying delta,
// used by bulk mutations where per-entity frames would be noise.
func (p *Publisher) NotifyStateChanged(ctx context.Context) {
	if !p.noteAvailability() {
		return
	}
	if err := p.bus.PublishStateChanged(ctx); err != nil {
		p.logger.Warn("Failed to signal state change", "error", err)
	}
}

func (p *Publisher) noteAvailability() bool {
	if p.bus.Available() {
		if p.degraded.Swap(false) {
			p.logger.Info("Event bus available again, resuming publishes")
		}
		return true
	}
	if !p.degraded.Swap(true) {
		p.logger.Warn("Event bus unavailable, dropping publishes until it returns")
	}
	return false
}
