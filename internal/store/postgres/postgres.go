// Package postgres implements the durable stores on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.EventStore, store.RollupStore and
// store.TenantStore on one connection pool.
type Store struct {
	pool *pgxpool.Pool
	tz   string
}

// New connects a pool and verifies it. reportingTZ is the timezone name
// used for hour-of-day extraction inside aggregation queries.
func New(ctx context.Context, dsn, reportingTZ string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool, tz: reportingTZ}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   TEXT        NOT NULL,
	visitor_id  TEXT        NOT NULL,
	user_id     TEXT,
	event       TEXT        NOT NULL,
	url         TEXT        NOT NULL DEFAULT '',
	platform    TEXT        NOT NULL DEFAULT 'website',
	system      TEXT        NOT NULL DEFAULT 'unknown',
	metadata    JSONB,
	captured_at TIMESTAMPTZ NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant_captured ON events (tenant_id, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_captured ON events (captured_at);
CREATE INDEX IF NOT EXISTS idx_events_tenant_visitor ON events (tenant_id, visitor_id) WHERE user_id IS NULL;

CREATE TABLE IF NOT EXISTS daily_funnel_stats (
	tenant_id       TEXT        NOT NULL DEFAULT '',
	date            TEXT        NOT NULL,
	funnel          TEXT        NOT NULL,
	count           BIGINT      NOT NULL DEFAULT 0,
	unique_visitors BIGINT      NOT NULL DEFAULT 0,
	hourly          JSONB       NOT NULL DEFAULT '[]',
	platforms       JSONB       NOT NULL DEFAULT '{}',
	systems         JSONB       NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, date, funnel)
);
CREATE INDEX IF NOT EXISTS idx_daily_funnel_stats_date ON daily_funnel_stats (date);

CREATE TABLE IF NOT EXISTS funnel_tokens (
	tenant_id    TEXT        PRIMARY KEY,
	tenant_token TEXT        NOT NULL UNIQUE,
	tenant_name  TEXT        NOT NULL UNIQUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Schema creates tables and indexes when absent.
func (s *Store) Schema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}
