package store

import (
	"context"

	"github.com/devswarm/devswarm/pkg/models"
)

// AgentCosts returns aggregated token spend per agent, most expensive first.
func (s *Store) AgentCosts(ctx context.Context) ([]models.AgentCost, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id,
		       COALESCE(SUM(input_tokens), 0)::INTEGER,
		       COALESCE(SUM(output_tokens), 0)::INTEGER,
		       COALESCE(SUM(cost_usd), 0)::FLOAT8
		FROM agent_costs
		GROUP BY agent_id
		ORDER BY 4 DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	costs := make([]models.AgentCost, 0)
	for rows.Next() {
		var c models.AgentCost
		if err := rows.Scan(&c.AgentID, &c.InputTokens, &c.OutputTokens, &c.CostUSD); err != nil {
			return nil, err
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

// RecordCost inserts one cost entry for an agent.
func (s *Store) RecordCost(ctx context.Context, agentID string, inputTokens, outputTokens int, costUSD float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_costs (agent_id, input_tokens, output_tokens, cost_usd)
		VALUES ($1, $2, $3, $4)
	`, agentID, inputTokens, outputTokens, costUSD)
	return err
}
