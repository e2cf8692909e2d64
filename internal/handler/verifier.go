package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vipinuengage/funnel-system/internal/store"
)

// Verifier resolves tenant tokens to tenant ids, caching hits briefly so
// hot tenants do not round-trip to the database per request.
type Verifier struct {
	tenants store.TenantStore
	cache   *redis.Client // optional
	ttl     time.Duration
}

func NewVerifier(tenants store.TenantStore, cache *redis.Client) *Verifier {
	return &Verifier{tenants: tenants, cache: cache, ttl: 5 * time.Minute}
}

func (v *Verifier) TenantIDForToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", store.ErrTenantNotFound
	}

	cacheKey := ""
	if v.cache != nil {
		hash := sha256.Sum256([]byte(token))
		cacheKey = "funneltoken:" + hex.EncodeToString(hash[:8])
		if id, err := v.cache.Get(ctx, cacheKey).Result(); err == nil && id != "" {
			return id, nil
		}
	}

	tenant, err := v.tenants.TenantByToken(ctx, token)
	if err != nil {
		return "", err
	}

	if v.cache != nil {
		v.cache.Set(ctx, cacheKey, tenant.ID, v.ttl)
	}
	return tenant.ID, nil
}
