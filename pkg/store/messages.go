package store

import (
	"context"

	"github.com/devswarm/devswarm/pkg/models"
)

// RecentMessages returns the newest messages, optionally filtered to those
// sent by or to one agent.
func (s *Store) RecentMessages(ctx context.Context, limit int, agentID string) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, COALESCE(from_agent, ''), COALESCE(to_agent, ''),
		       content, message_type, created_at
		FROM messages`
	args := []any{limit}
	if agentID != "" {
		query += ` WHERE from_agent = $2 OR to_agent = $2`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		err := rows.Scan(&m.ID, &m.FromAgent, &m.ToAgent, &m.Content,
			&m.MessageType, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateMessage appends a message and returns the stored row.
func (s *Store) CreateMessage(ctx context.Context, req models.MessageCreateRequest) (models.Message, error) {
	messageType := req.MessageType
	if messageType == "" {
		messageType = "chat"
	}

	var fromAgent, toAgent any
	if req.FromAgent != "" {
		fromAgent = req.FromAgent
	}
	if req.ToAgent != "" {
		toAgent = req.ToAgent
	}

	var m models.Message
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (from_agent, to_agent, content, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, COALESCE(from_agent, ''), COALESCE(to_agent, ''),
		          content, message_type, created_at
	`, fromAgent, toAgent, req.Content, messageType).Scan(
		&m.ID, &m.FromAgent, &m.ToAgent, &m.Content, &m.MessageType, &m.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return m, nil
}
