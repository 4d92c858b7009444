package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/devswarm/devswarm/pkg/models"
)

const agentColumns = `
	id, name, role, current_room, status, current_task,
	thought_chain, tech_stack, avatar_color, updated_at`

func scanAgent(row pgx.Row) (models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID, &a.Name, &a.Role, &a.CurrentRoom, &a.Status,
		&a.CurrentTask, &a.ThoughtChain, &a.TechStack,
		&a.AvatarColor, &a.UpdatedAt,
	)
	if a.TechStack == nil {
		a.TechStack = []string{}
	}
	return a, err
}

// ListAgents returns every agent, ordered by display name.
func (s *Store) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]models.Agent, 0, 8)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetAgent returns a single agent by id, or ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, id string) (models.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id))
	if err != nil {
		return models.Agent{}, notFoundOr(err)
	}
	return a, nil
}

// AgentPatch is a partial agent update. Nil fields are left untouched.
type AgentPatch struct {
	CurrentRoom  *string
	Status       *string
	CurrentTask  *string
	ThoughtChain *string
}

// UpdateAgent applies a partial update and returns the updated row.
// updated_at is always advanced, keeping it monotonically non-decreasing.
func (s *Store) UpdateAgent(ctx context.Context, id string, patch AgentPatch) (models.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx, `
		UPDATE agents SET
			current_room  = COALESCE($1, current_room),
			status        = COALESCE($2, status),
			current_task  = COALESCE($3, current_task),
			thought_chain = COALESCE($4, thought_chain),
			updated_at    = NOW()
		WHERE id = $5
		RETURNING `+agentColumns,
		patch.CurrentRoom, patch.Status, patch.CurrentTask, patch.ThoughtChain, id))
	if err != nil {
		return models.Agent{}, notFoundOr(err)
	}
	return a, nil
}

// BulkUpdateAgents sets every agent's status and room in one statement.
// The caller is responsible for the version bump.
func (s *Store) BulkUpdateAgents(ctx context.Context, status, room string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agents SET status = $1, current_room = $2, updated_at = NOW()
	`, status, room)
	return err
}
