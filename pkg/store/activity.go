package store

import (
	"context"
	"encoding/json"

	"github.com/devswarm/devswarm/pkg/models"
)

// LogActivity appends an audit record. Details may be any JSON-serializable
// value; nil becomes an empty object.
func (s *Store) LogActivity(ctx context.Context, agentID, action string, details any) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil || details == nil {
		detailsJSON = []byte(`{}`)
	}

	var agent any
	if agentID != "" {
		agent = agentID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO activity_log (agent_id, action, details) VALUES ($1, $2, $3)
	`, agent, action, detailsJSON)
	return err
}

// ActivityLog returns the newest audit records.
func (s *Store) ActivityLog(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(agent_id, ''), action, details, created_at
		FROM activity_log ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.ActivityEntry, 0)
	for rows.Next() {
		var e models.ActivityEntry
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if detailsJSON != nil {
			_ = json.Unmarshal(detailsJSON, &e.Details)
		}
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
