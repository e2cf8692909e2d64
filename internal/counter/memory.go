package counter

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory implements Store with process-local maps and exact sets. It backs
// single-node deployments that run without redis, and tests.
type Memory struct {
	mu         sync.Mutex
	counts     map[string]int64
	sets       map[string]map[string]struct{}
	registry   map[string]map[string]struct{}
	identities map[string]string
	locks      map[string]time.Time
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		counts:     make(map[string]int64),
		sets:       make(map[string]map[string]struct{}),
		registry:   make(map[string]map[string]struct{}),
		identities: make(map[string]string),
		locks:      make(map[string]time.Time),
		now:        time.Now,
	}
}

func (m *Memory) Apply(ctx context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range batch.Updates {
		m.counts[CountKey(u.Key, u.Dim)]++
		if u.VisitorID != "" {
			k := SetKey(u.Key, u.Dim)
			if m.sets[k] == nil {
				m.sets[k] = make(map[string]struct{})
			}
			m.sets[k][u.VisitorID] = struct{}{}
		}
		reg := RegistryKey(u.Key.Scope, u.Key.Date)
		if m.registry[reg] == nil {
			m.registry[reg] = make(map[string]struct{})
		}
		m.registry[reg][u.Key.Event] = struct{}{}
	}

	for _, id := range batch.Identities {
		m.identities[IdentityKey(id.TenantID, id.VisitorID)] = id.UserID
	}
	return nil
}

func (m *Memory) EventNames(ctx context.Context, scope Scope, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.registry[RegistryKey(scope, date)]))
	for name := range m.registry[RegistryKey(scope, date)] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Count(ctx context.Context, key Key, dim Dimension) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[CountKey(key, dim)], nil
}

func (m *Memory) Distinct(ctx context.Context, key Key, dim Dimension) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sets[SetKey(key, dim)])), nil
}

func (m *Memory) Identity(ctx context.Context, tenantID, visitorID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[IdentityKey(tenantID, visitorID)], nil
}

func (m *Memory) AcquireRunLock(ctx context.Context, date string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := RunLockKey(date)
	if until, held := m.locks[key]; held && m.now().Before(until) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseRunLock(ctx context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, RunLockKey(date))
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
