// Package dashboard answers per-day funnel breakdown queries by
// reconciling three sources of differing freshness: durable rollups,
// live counters and the raw event log.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/counter"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
)

// Source tags reported to the caller. "redis" names the live counter
// tier on the wire regardless of the backing implementation.
const (
	SourceDaily    = "daily"
	SourceCounters = "redis"
	SourceEvents   = "events"
)

// Funnel is one event name's breakdown for the requested day.
type Funnel struct {
	Count          int64                       `json:"count"`
	UniqueVisitors int64                       `json:"unique_visitors"`
	Hourly         []store.HourlyStat          `json:"hourly"`
	Platforms      map[string]store.BucketStat `json:"platforms"`
	Systems        map[string]store.BucketStat `json:"systems"`
}

// Report is the full dashboard answer, tagged with the tier that served it.
type Report struct {
	Date     string            `json:"date"`
	TenantID string            `json:"tenant_id"`
	Source   string            `json:"source"`
	Funnels  map[string]Funnel `json:"funnels"`
}

type Reader struct {
	rollups  store.RollupStore
	events   store.EventStore
	counters counter.Store // nil when counters are disabled
	rep      event.Reporting
	now      func() time.Time
}

func New(rollups store.RollupStore, events store.EventStore, counters counter.Store, rep event.Reporting) *Reader {
	return &Reader{
		rollups:  rollups,
		events:   events,
		counters: counters,
		rep:      rep,
		now:      time.Now,
	}
}

// Read serves the funnel breakdown for a tenant and date (default: the
// current reporting day). Past days come from rollups; today comes from
// live counters, falling back to raw-log aggregation. Lower-tier failures
// are logged and escalate silently; only exhaustion of every tier errors.
func (r *Reader) Read(ctx context.Context, tenantID, date string) (*Report, error) {
	today := r.rep.Today(r.now())
	if date == "" {
		date = today
	} else if _, _, err := r.rep.DayWindow(date); err != nil {
		return nil, err
	}

	if date != today {
		return r.fromRollups(ctx, tenantID, date)
	}

	if r.counters != nil {
		funnels, err := r.fromCounters(ctx, counter.Scope{TenantID: tenantID}, date)
		if err == nil && len(funnels) == 0 {
			// Legacy buckets written before tenant scoping.
			funnels, err = r.fromCounters(ctx, counter.Scope{}, date)
		}
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Str("date", date).
				Msg("Counter store read failed, falling back to raw event log")
		} else if len(funnels) > 0 {
			return &Report{Date: date, TenantID: tenantID, Source: SourceCounters, Funnels: funnels}, nil
		}
	}

	return r.fromEvents(ctx, tenantID, date)
}

func (r *Reader) fromRollups(ctx context.Context, tenantID, date string) (*Report, error) {
	rollups, err := r.rollups.ListDay(ctx, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("read rollups for %s: %w", date, err)
	}

	funnels := make(map[string]Funnel, len(rollups))
	for _, ru := range rollups {
		funnels[ru.Funnel] = Funnel{
			Count:          ru.Count,
			UniqueVisitors: ru.UniqueVisitors,
			Hourly:         fullHourly(ru.Hourly),
			Platforms:      orEmpty(ru.Platforms),
			Systems:        orEmpty(ru.Systems),
		}
	}
	return &Report{Date: date, TenantID: tenantID, Source: SourceDaily, Funnels: funnels}, nil
}

func (r *Reader) fromCounters(ctx context.Context, scope counter.Scope, date string) (map[string]Funnel, error) {
	names, err := r.counters.EventNames(ctx, scope, date)
	if err != nil {
		return nil, err
	}

	funnels := make(map[string]Funnel, len(names))
	for _, name := range names {
		key := counter.Key{Scope: scope, Date: date, Event: name}
		f := Funnel{
			Hourly:    emptyHourly(),
			Platforms: make(map[string]store.BucketStat),
			Systems:   make(map[string]store.BucketStat),
		}

		if f.Count, err = r.counters.Count(ctx, key, counter.Total()); err != nil {
			return nil, err
		}
		if f.UniqueVisitors, err = r.counters.Distinct(ctx, key, counter.Total()); err != nil {
			return nil, err
		}

		for h := 0; h < 24; h++ {
			c, err := r.counters.Count(ctx, key, counter.ByHour(h))
			if err != nil {
				return nil, err
			}
			if c == 0 {
				continue
			}
			uv, err := r.counters.Distinct(ctx, key, counter.ByHour(h))
			if err != nil {
				return nil, err
			}
			f.Hourly[h] = store.HourlyStat{Hour: h, Count: c, UniqueVisitors: uv}
		}

		for _, p := range event.Platforms() {
			if err := r.readBucket(ctx, key, counter.ByPlatform(string(p)), string(p), f.Platforms); err != nil {
				return nil, err
			}
		}
		for _, s := range event.Systems() {
			if err := r.readBucket(ctx, key, counter.BySystem(string(s)), string(s), f.Systems); err != nil {
				return nil, err
			}
		}

		funnels[name] = f
	}
	return funnels, nil
}

func (r *Reader) readBucket(ctx context.Context, key counter.Key, dim counter.Dimension, name string, into map[string]store.BucketStat) error {
	c, err := r.counters.Count(ctx, key, dim)
	if err != nil {
		return err
	}
	if c == 0 {
		return nil
	}
	uv, err := r.counters.Distinct(ctx, key, dim)
	if err != nil {
		return err
	}
	into[name] = store.BucketStat{Count: c, UniqueVisitors: uv}
	return nil
}

// fromEvents is the last tier: aggregate the day's raw log directly.
func (r *Reader) fromEvents(ctx context.Context, tenantID, date string) (*Report, error) {
	start, end, err := r.rep.DayWindow(date)
	if err != nil {
		return nil, err
	}

	rows, err := r.events.AggregateWindow(ctx, tenantID, store.Window{Start: start, End: end})
	if err != nil {
		return nil, fmt.Errorf("aggregate raw events for %s: %w", date, err)
	}

	type subTotal struct {
		count    int64
		visitors map[string]struct{}
	}
	type total struct {
		subTotal
		hourly    map[int]*subTotal
		platforms map[string]*subTotal
		systems   map[string]*subTotal
	}

	totals := make(map[string]*total)
	sub := func(m map[string]*subTotal, k string) *subTotal {
		if m[k] == nil {
			m[k] = &subTotal{visitors: make(map[string]struct{})}
		}
		return m[k]
	}

	for _, row := range rows {
		t := totals[row.Event]
		if t == nil {
			t = &total{
				subTotal:  subTotal{visitors: make(map[string]struct{})},
				hourly:    make(map[int]*subTotal),
				platforms: make(map[string]*subTotal),
				systems:   make(map[string]*subTotal),
			}
			totals[row.Event] = t
		}

		t.count += row.Count
		if t.hourly[row.Hour] == nil {
			t.hourly[row.Hour] = &subTotal{visitors: make(map[string]struct{})}
		}
		t.hourly[row.Hour].count += row.Count
		p := sub(t.platforms, row.Platform)
		p.count += row.Count
		s := sub(t.systems, row.System)
		s.count += row.Count

		for _, v := range row.Visitors {
			t.visitors[v] = struct{}{}
			t.hourly[row.Hour].visitors[v] = struct{}{}
			p.visitors[v] = struct{}{}
			s.visitors[v] = struct{}{}
		}
	}

	funnels := make(map[string]Funnel, len(totals))
	for name, t := range totals {
		f := Funnel{
			Count:          t.count,
			UniqueVisitors: int64(len(t.visitors)),
			Hourly:         emptyHourly(),
			Platforms:      make(map[string]store.BucketStat),
			Systems:        make(map[string]store.BucketStat),
		}
		for h, st := range t.hourly {
			f.Hourly[h] = store.HourlyStat{Hour: h, Count: st.count, UniqueVisitors: int64(len(st.visitors))}
		}
		for p, st := range t.platforms {
			f.Platforms[p] = store.BucketStat{Count: st.count, UniqueVisitors: int64(len(st.visitors))}
		}
		for s, st := range t.systems {
			f.Systems[s] = store.BucketStat{Count: st.count, UniqueVisitors: int64(len(st.visitors))}
		}
		funnels[name] = f
	}

	return &Report{Date: date, TenantID: tenantID, Source: SourceEvents, Funnels: funnels}, nil
}

func emptyHourly() []store.HourlyStat {
	hourly := make([]store.HourlyStat, 24)
	for h := range hourly {
		hourly[h].Hour = h
	}
	return hourly
}

// fullHourly normalizes a stored hourly array to exactly 24 slots.
func fullHourly(stats []store.HourlyStat) []store.HourlyStat {
	hourly := emptyHourly()
	for _, st := range stats {
		if st.Hour >= 0 && st.Hour < 24 {
			hourly[st.Hour] = st
		}
	}
	return hourly
}

func orEmpty(m map[string]store.BucketStat) map[string]store.BucketStat {
	if m == nil {
		return make(map[string]store.BucketStat)
	}
	return m
}
