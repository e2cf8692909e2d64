// Package store defines the durable persistence capabilities: the raw
// event log (source of truth), the daily rollup store and the tenant
// credential registry.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vipinuengage/funnel-system/internal/event"
)

var ErrTenantNotFound = errors.New("tenant not found")

// Window is a half-open [Start, End) time range over captured_at.
type Window struct {
	Start time.Time
	End   time.Time
}

// AggRow is one grouped slice of the raw event log:
// (tenant, event, hour, platform, system) with its count and the distinct
// visitor/transaction ids seen in the group. Grouping happens in the
// store so the job never materializes raw events.
type AggRow struct {
	TenantID     string
	Event        string
	Hour         int
	Platform     string
	System       string
	Count        int64
	Visitors     []string
	Transactions []string
}

// EventStore is the raw event log.
type EventStore interface {
	// InsertBatch durably appends a normalized batch in one write.
	InsertBatch(ctx context.Context, events []event.Event) (int64, error)
	// BackfillUserID rewrites prior unidentified events of a tenant's
	// visitor to carry the resolved user id. Idempotent: already
	// identified rows are untouched.
	BackfillUserID(ctx context.Context, tenantID, visitorID, userID string) (int64, error)
	// AggregateWindow groups the window's events by
	// (tenant, event, hour, platform, system). An empty tenantID spans
	// all tenants. Hours are bucketed in the reporting timezone.
	AggregateWindow(ctx context.Context, tenantID string, w Window) ([]AggRow, error)
	// StreamWindow feeds every raw event of the window to fn in
	// captured_at order, without materializing the set.
	StreamWindow(ctx context.Context, w Window, fn func(event.Event) error) (int64, error)
	// DeleteWindow removes the window's events, returning the count.
	DeleteWindow(ctx context.Context, w Window) (int64, error)
	// UnidentifiedCount counts a visitor's events still missing a user id.
	UnidentifiedCount(ctx context.Context, tenantID, visitorID string) (int64, error)
}

// HourlyStat is one entry of a rollup's 24-slot hourly breakdown.
type HourlyStat struct {
	Hour           int   `json:"hour"`
	Count          int64 `json:"count"`
	UniqueVisitors int64 `json:"unique_visitors"`
}

// BucketStat is a per-platform or per-system breakdown entry.
type BucketStat struct {
	Count          int64 `json:"count"`
	UniqueVisitors int64 `json:"unique_visitors"`
}

// Rollup is the durable daily aggregate for one (tenant, date, funnel).
// Hourly always carries exactly 24 entries, zero-filled for absent hours.
type Rollup struct {
	TenantID       string
	Date           string
	Funnel         string
	Count          int64
	UniqueVisitors int64
	Hourly         []HourlyStat
	Platforms      map[string]BucketStat
	Systems        map[string]BucketStat
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RollupStore holds daily rollups.
type RollupStore interface {
	// UpsertAll writes every rollup of one run atomically. Recomputation
	// for the same (tenant, date, funnel) overwrites, never adds.
	UpsertAll(ctx context.Context, rollups []Rollup) error
	// ListDay returns a tenant's rollups for one date, including legacy
	// rows written before rollups were tenant-scoped.
	ListDay(ctx context.Context, tenantID, date string) ([]Rollup, error)
}

// Tenant is a credentialed customer account.
type Tenant struct {
	ID        string
	Token     string
	Name      string
	CreatedAt time.Time
}

// TenantStore resolves tenant credentials. Issuance lives elsewhere.
type TenantStore interface {
	TenantByToken(ctx context.Context, token string) (*Tenant, error)
	TenantExists(ctx context.Context, tenantID string) (bool, error)
}
