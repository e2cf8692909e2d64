package rollup

import (
	"sort"
	"time"

	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
)

// bucket tracks one slice's running count and its distinct visitor and
// transaction ids.
type bucket struct {
	count    int64
	visitors map[string]struct{}
	txns     map[string]struct{}
}

func newBucket() *bucket {
	return &bucket{
		visitors: make(map[string]struct{}),
		txns:     make(map[string]struct{}),
	}
}

func (b *bucket) absorb(row store.AggRow) {
	b.count += row.Count
	for _, v := range row.Visitors {
		if v != "" {
			b.visitors[v] = struct{}{}
		}
	}
	for _, t := range row.Transactions {
		if t != "" {
			b.txns[t] = struct{}{}
		}
	}
}

// unique is a bucket's unique-visitor figure: conversion-typed events
// prefer distinct transaction ids when any were seen.
func (b *bucket) unique(eventName string) int64 {
	if event.IsConversion(eventName) && len(b.txns) > 0 {
		return int64(len(b.txns))
	}
	return int64(len(b.visitors))
}

type eventTotals struct {
	bucket
	hours     map[int]*bucket
	platforms map[string]*bucket
	systems   map[string]*bucket
}

// accumulator folds grouped raw-log rows into per-tenant, per-event
// totals with hour/platform/system sub-buckets.
type accumulator struct {
	tenants map[string]map[string]*eventTotals
}

func newAccumulator() *accumulator {
	return &accumulator{tenants: make(map[string]map[string]*eventTotals)}
}

func (a *accumulator) add(row store.AggRow) {
	byEvent := a.tenants[row.TenantID]
	if byEvent == nil {
		byEvent = make(map[string]*eventTotals)
		a.tenants[row.TenantID] = byEvent
	}

	t := byEvent[row.Event]
	if t == nil {
		t = &eventTotals{
			bucket:    *newBucket(),
			hours:     make(map[int]*bucket),
			platforms: make(map[string]*bucket),
			systems:   make(map[string]*bucket),
		}
		byEvent[row.Event] = t
	}

	t.bucket.absorb(row)

	if t.hours[row.Hour] == nil {
		t.hours[row.Hour] = newBucket()
	}
	t.hours[row.Hour].absorb(row)

	if t.platforms[row.Platform] == nil {
		t.platforms[row.Platform] = newBucket()
	}
	t.platforms[row.Platform].absorb(row)

	if t.systems[row.System] == nil {
		t.systems[row.System] = newBucket()
	}
	t.systems[row.System].absorb(row)
}

// finalize produces one rollup per (tenant, event) in deterministic
// order. Hourly arrays always carry exactly 24 zero-filled entries.
func (a *accumulator) finalize(date string, now time.Time) []store.Rollup {
	tenantIDs := make([]string, 0, len(a.tenants))
	for id := range a.tenants {
		tenantIDs = append(tenantIDs, id)
	}
	sort.Strings(tenantIDs)

	var out []store.Rollup
	for _, tenantID := range tenantIDs {
		byEvent := a.tenants[tenantID]
		names := make([]string, 0, len(byEvent))
		for name := range byEvent {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			t := byEvent[name]

			hourly := make([]store.HourlyStat, 24)
			for h := range hourly {
				hourly[h].Hour = h
				if b := t.hours[h]; b != nil {
					hourly[h].Count = b.count
					hourly[h].UniqueVisitors = b.unique(name)
				}
			}

			platforms := make(map[string]store.BucketStat, len(t.platforms))
			for p, b := range t.platforms {
				platforms[p] = store.BucketStat{Count: b.count, UniqueVisitors: b.unique(name)}
			}
			systems := make(map[string]store.BucketStat, len(t.systems))
			for s, b := range t.systems {
				systems[s] = store.BucketStat{Count: b.count, UniqueVisitors: b.unique(name)}
			}

			out = append(out, store.Rollup{
				TenantID:       tenantID,
				Date:           date,
				Funnel:         name,
				Count:          t.count,
				UniqueVisitors: t.unique(name),
				Hourly:         hourly,
				Platforms:      platforms,
				Systems:        systems,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
	}
	return out
}
