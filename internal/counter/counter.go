// Package counter is the live counter store: volatile per-tenant/day
// buckets of event counts and distinct-visitor sets, refreshed by the
// recorder and read by the dashboard for the current reporting day.
package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Capabilities declares which distinct-count primitives the backend uses.
// Fixed at startup configuration; call sites never probe.
type Capabilities struct {
	// ApproxDistinct enables the bounded-memory cardinality estimator.
	ApproxDistinct bool
	// ExactSets enables exact distinct sets, read when the estimator is
	// not available.
	ExactSets bool
}

// Scope selects the key namespace. An empty TenantID addresses the legacy
// global namespace that predates tenant-scoped buckets.
type Scope struct {
	TenantID string
}

func (s Scope) Global() bool { return s.TenantID == "" }

// Key addresses one event's bucket group for a tenant and reporting day.
type Key struct {
	Scope Scope
	Date  string
	Event string
}

func (k Key) base() string {
	if k.Scope.Global() {
		return "funnel:" + k.Date + ":" + k.Event
	}
	return "funnel:" + k.Scope.TenantID + ":" + k.Date + ":" + k.Event
}

// Dimension narrows a key to one sub-bucket. The zero value addresses the
// event's top-level bucket.
type Dimension struct {
	Kind  string // "", "hour", "platform", "system"
	Value string
}

func Total() Dimension              { return Dimension{} }
func ByHour(h int) Dimension        { return Dimension{Kind: "hour", Value: strconv.Itoa(h)} }
func ByPlatform(p string) Dimension { return Dimension{Kind: "platform", Value: p} }
func BySystem(s string) Dimension   { return Dimension{Kind: "system", Value: s} }

// CountKey returns the backend key holding the bucket's counter.
func CountKey(k Key, d Dimension) string {
	if d.Kind == "" {
		return k.base() + ":count"
	}
	return fmt.Sprintf("%s:%s:%s:count", k.base(), d.Kind, d.Value)
}

// DistinctKey returns the backend key holding the bucket's approximate
// distinct-visitor structure.
func DistinctKey(k Key, d Dimension) string {
	if d.Kind == "" {
		return k.base() + ":uv"
	}
	return fmt.Sprintf("%s:%s:%s:uv", k.base(), d.Kind, d.Value)
}

// SetKey returns the backend key holding the bucket's exact visitor set.
// Kept apart from DistinctKey since the two structures cannot share a key.
func SetKey(k Key, d Dimension) string {
	return DistinctKey(k, d) + "set"
}

// RegistryKey returns the per-scope set of event names seen for a day.
// Written on first increment so readers never reverse-engineer names from
// key patterns.
func RegistryKey(s Scope, date string) string {
	if s.Global() {
		return "funnel:" + date + ":events"
	}
	return "funnel:" + s.TenantID + ":" + date + ":events"
}

// IdentityKey returns the key of the short-lived visitor -> user mapping.
func IdentityKey(tenantID, visitorID string) string {
	return "visitor_to_user:" + tenantID + ":" + visitorID
}

// RunLockKey returns the key of the per-date rollup run lock.
func RunLockKey(date string) string {
	return "funnel:rolluplock:" + date
}

// Update increments one bucket and, when VisitorID is set, adds the
// visitor to its distinct sets.
type Update struct {
	Key       Key
	Dim       Dimension
	VisitorID string
}

// Identity is a short-lived visitor -> user association.
type Identity struct {
	TenantID  string
	VisitorID string
	UserID    string
}

// Batch is one request's worth of counter work, applied as a single
// round trip. Partial failure never surfaces per item.
type Batch struct {
	Updates    []Update
	Identities []Identity
}

// Store is the injected live-counter capability. Implementations: Redis
// for production, Memory for single-node and tests.
type Store interface {
	// Apply performs the whole batch in one backend round trip.
	Apply(ctx context.Context, batch Batch) error
	// EventNames lists the event names registered under a scope and day.
	EventNames(ctx context.Context, scope Scope, date string) ([]string, error)
	// Count reads one bucket's counter; absent buckets read as zero.
	Count(ctx context.Context, key Key, dim Dimension) (int64, error)
	// Distinct reads one bucket's distinct-visitor cardinality using the
	// configured capability (estimator first, exact set otherwise).
	Distinct(ctx context.Context, key Key, dim Dimension) (int64, error)
	// Identity resolves a visitor to the user it was mapped to, "" if the
	// mapping is absent or expired.
	Identity(ctx context.Context, tenantID, visitorID string) (string, error)
	// AcquireRunLock takes the per-date rollup lock. False means another
	// run holds it.
	AcquireRunLock(ctx context.Context, date string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, date string) error
	Ping(ctx context.Context) error
}
