package counter

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a redis backend. All writes for one batch go
// through a single pipeline.
type Redis struct {
	rdb         *redis.Client
	caps        Capabilities
	identityTTL time.Duration
}

func NewRedis(rdb *redis.Client, caps Capabilities, identityTTL time.Duration) *Redis {
	return &Redis{rdb: rdb, caps: caps, identityTTL: identityTTL}
}

func (r *Redis) Apply(ctx context.Context, batch Batch) error {
	if len(batch.Updates) == 0 && len(batch.Identities) == 0 {
		return nil
	}

	pipe := r.rdb.Pipeline()
	registered := make(map[string]struct{})

	for _, u := range batch.Updates {
		pipe.Incr(ctx, CountKey(u.Key, u.Dim))

		if u.VisitorID != "" {
			if r.caps.ApproxDistinct {
				pipe.PFAdd(ctx, DistinctKey(u.Key, u.Dim), u.VisitorID)
			}
			if r.caps.ExactSets {
				pipe.SAdd(ctx, SetKey(u.Key, u.Dim), u.VisitorID)
			}
		}

		reg := RegistryKey(u.Key.Scope, u.Key.Date)
		if _, ok := registered[reg+"\x00"+u.Key.Event]; !ok {
			registered[reg+"\x00"+u.Key.Event] = struct{}{}
			pipe.SAdd(ctx, reg, u.Key.Event)
		}
	}

	for _, id := range batch.Identities {
		pipe.Set(ctx, IdentityKey(id.TenantID, id.VisitorID), id.UserID, r.identityTTL)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) EventNames(ctx context.Context, scope Scope, date string) ([]string, error) {
	names, err := r.rdb.SMembers(ctx, RegistryKey(scope, date)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *Redis) Count(ctx context.Context, key Key, dim Dimension) (int64, error) {
	n, err := r.rdb.Get(ctx, CountKey(key, dim)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Distinct(ctx context.Context, key Key, dim Dimension) (int64, error) {
	if r.caps.ApproxDistinct {
		return r.rdb.PFCount(ctx, DistinctKey(key, dim)).Result()
	}
	if r.caps.ExactSets {
		return r.rdb.SCard(ctx, SetKey(key, dim)).Result()
	}
	return 0, nil
}

func (r *Redis) Identity(ctx context.Context, tenantID, visitorID string) (string, error) {
	user, err := r.rdb.Get(ctx, IdentityKey(tenantID, visitorID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return user, err
}

func (r *Redis) AcquireRunLock(ctx context.Context, date string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, RunLockKey(date), "1", ttl).Result()
}

func (r *Redis) ReleaseRunLock(ctx context.Context, date string) error {
	return r.rdb.Del(ctx, RunLockKey(date)).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
