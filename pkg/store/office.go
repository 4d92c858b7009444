package store

import (
	"context"
	"encoding/json"

	"github.com/devswarm/devswarm/pkg/models"
)

// Version returns the current office state version.
func (s *Store) Version(ctx context.Context) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM office_state WHERE id = 1`).Scan(&version)
	return version, err
}

// BumpVersion atomically increments the version and returns the new value.
// Callers invoke it exactly once per durable mutation; there is no
// idempotence guard.
func (s *Store) BumpVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `
		UPDATE office_state SET version = version + 1, updated_at = NOW()
		WHERE id = 1
		RETURNING version
	`).Scan(&version)
	return version, err
}

// UpdateStateJSON replaces the opaque state blob and bumps the version in
// the same statement. The blob has no meaning to this service.
func (s *Store) UpdateStateJSON(ctx context.Context, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE office_state SET state_json = $1, version = version + 1, updated_at = NOW()
		WHERE id = 1
	`, data)
	return err
}

// GetFullState reads the version and then every entity the dashboard needs.
// Reading the version first guarantees the entities are at least as fresh
// as the version reported: any concurrent mutation bumps after its write,
// so an entity can only be newer than the version, never older.
func (s *Store) GetFullState(ctx context.Context, messagesLimit int) (models.FullState, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return models.FullState{}, err
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		return models.FullState{}, err
	}

	messages, err := s.RecentMessages(ctx, messagesLimit, "")
	if err != nil {
		return models.FullState{}, err
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return models.FullState{}, err
	}

	return models.FullState{
		Agents:   agents,
		Messages: messages,
		Tasks:    tasks,
		Version:  version,
	}, nil
}
