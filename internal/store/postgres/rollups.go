package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vipinuengage/funnel-system/internal/store"
)

// UpsertAll writes all rollups of one run inside a single transaction, so
// a mid-run failure commits nothing.
func (s *Store) UpsertAll(ctx context.Context, rollups []store.Rollup) error {
	if len(rollups) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rollup upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rollups {
		hourly, err := json.Marshal(r.Hourly)
		if err != nil {
			return fmt.Errorf("marshal hourly stats: %w", err)
		}
		platforms, err := json.Marshal(r.Platforms)
		if err != nil {
			return fmt.Errorf("marshal platform stats: %w", err)
		}
		systems, err := json.Marshal(r.Systems)
		if err != nil {
			return fmt.Errorf("marshal system stats: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO daily_funnel_stats
				(tenant_id, date, funnel, count, unique_visitors,
				 hourly, platforms, systems, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			ON CONFLICT (tenant_id, date, funnel) DO UPDATE SET
				count           = EXCLUDED.count,
				unique_visitors = EXCLUDED.unique_visitors,
				hourly          = EXCLUDED.hourly,
				platforms       = EXCLUDED.platforms,
				systems         = EXCLUDED.systems,
				updated_at      = EXCLUDED.updated_at
		`, r.TenantID, r.Date, r.Funnel, r.Count, r.UniqueVisitors,
			hourly, platforms, systems, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert rollup %s/%s/%s: %w", r.TenantID, r.Date, r.Funnel, err)
		}
	}

	return tx.Commit(ctx)
}

// ListDay returns a tenant's rollups for one date. Rows with an empty
// tenant_id predate tenant scoping and are served to every tenant.
func (s *Store) ListDay(ctx context.Context, tenantID, date string) ([]store.Rollup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, date, funnel, count, unique_visitors,
		       hourly, platforms, systems, created_at, updated_at
		FROM daily_funnel_stats
		WHERE date = $1 AND (tenant_id = $2 OR tenant_id = '')
	`, date, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()

	var out []store.Rollup
	for rows.Next() {
		var r store.Rollup
		var hourly, platforms, systems []byte
		if err := rows.Scan(&r.TenantID, &r.Date, &r.Funnel, &r.Count, &r.UniqueVisitors,
			&hourly, &platforms, &systems, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		if err := json.Unmarshal(hourly, &r.Hourly); err != nil {
			return nil, fmt.Errorf("unmarshal hourly stats: %w", err)
		}
		if err := json.Unmarshal(platforms, &r.Platforms); err != nil {
			return nil, fmt.Errorf("unmarshal platform stats: %w", err)
		}
		if err := json.Unmarshal(systems, &r.Systems); err != nil {
			return nil, fmt.Errorf("unmarshal system stats: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	return out, nil
}
