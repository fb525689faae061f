// Package postgres provides PostgreSQL connection pooling and the target registry
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool with domain-specific query methods
type Pool struct {
	*pgxpool.Pool
}

// NewPoolFromURL creates a pool from a connection URL
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Schema creates the alerts table read by the target registry
const Schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id               TEXT PRIMARY KEY,
	lat              DOUBLE PRECISION NOT NULL,
	lon              DOUBLE PRECISION NOT NULL,
	state            TEXT NOT NULL DEFAULT 'available',
	assigned_unit_id TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts (state);
`

// EnsureSchema creates missing tables
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Health checks if the database connection is healthy
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}
