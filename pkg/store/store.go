// Package store owns all persistent state: agents, tasks, messages, the
// activity log, per-agent costs, and the office_state singleton that carries
// the monotonic broadcast version.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing. The pool is shared by HTTP handlers, the bridge, the
// dispatcher and the queue worker, so it is deliberately generous.
const (
	maxConns          = 20
	minConns          = 2
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
)

// Store is the PostgreSQL-backed state store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies pending migrations, and returns a
// ready store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = minConns
	poolCfg.MaxConnLifetime = maxConnLifetime
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(databaseURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Connected to PostgreSQL",
		"max_conns", poolCfg.MaxConns, "min_conns", poolCfg.MinConns)

	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool. Migrations are assumed applied;
// used by tests that manage their own database lifecycle.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
	slog.Info("Database connection pool closed")
}
