// Package state builds the frames pushed to dashboard clients and bridges
// bus events and poll heartbeats into hub broadcasts.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devswarm/devswarm/pkg/models"
)

// Snapshotter is the slice of the store the assembler needs.
type Snapshotter interface {
	GetFullState(ctx context.Context, messagesLimit int) (models.FullState, error)
}

// Assembler turns a coherent store read into the STATE_UPDATE frame shape.
type Assembler struct {
	store         Snapshotter
	messagesLimit int
}

func NewAssembler(store Snapshotter, messagesLimit int) *Assembler {
	return &Assembler{store: store, messagesLimit: messagesLimit}
}

// BuildFrame shapes a full state read for the wire: agents become a map
// keyed by id so clients index directly instead of scanning.
func BuildFrame(full models.FullState) models.StateFrame {
	agents := make(map[string]models.Agent, len(full.Agents))
	for _, a := range full.Agents {
		agents[a.ID] = a
	}
	return models.StateFrame{
		Type:     models.FrameStateUpdate,
		Agents:   agents,
		Messages: full.Messages,
		Tasks:    full.Tasks,
		Version:  full.Version,
	}
}

// Snapshot reads the full state and returns the serialized STATE_UPDATE
// frame together with the version it carries.
func (a *Assembler) Snapshot(ctx context.Context) ([]byte, int64, error) {
	full, err := a.store.GetFullState(ctx, a.messagesLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("reading full state: %w", err)
	}

	payload, err := json.Marshal(BuildFrame(full))
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling state frame: %w", err)
	}
	return payload, full.Version, nil
}
