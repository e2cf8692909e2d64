package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vipinuengage/funnel-system/internal/store"
)

func (s *Store) TenantByToken(ctx context.Context, token string) (*store.Tenant, error) {
	var t store.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, tenant_token, tenant_name, created_at
		FROM funnel_tokens
		WHERE tenant_token = $1
	`, token).Scan(&t.ID, &t.Token, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant token: %w", err)
	}
	return &t, nil
}

func (s *Store) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM funnel_tokens WHERE tenant_id = $1)
	`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant: %w", err)
	}
	return exists, nil
}
