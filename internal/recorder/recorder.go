// Package recorder accepts inbound event batches: it durably persists
// them to the raw event log, opportunistically refreshes live counters,
// and handles identity backfill.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/counter"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
	"github.com/vipinuengage/funnel-system/internal/stream"
)

var (
	ErrNoTenant = errors.New("missing tenant identity")
	ErrNoEvents = errors.New("missing events")
)

// Result is the outcome of one Record call. CountersLive reports whether
// the live counter update round trip succeeded.
type Result struct {
	Accepted     int
	CountersLive bool
}

type Recorder struct {
	events    store.EventStore
	counters  counter.Store // nil when counters are disabled
	publisher stream.Publisher
	backfill  *Backfiller
	rep       event.Reporting
	now       func() time.Time
}

func New(events store.EventStore, counters counter.Store, publisher stream.Publisher, backfill *Backfiller, rep event.Reporting) *Recorder {
	return &Recorder{
		events:    events,
		counters:  counters,
		publisher: publisher,
		backfill:  backfill,
		rep:       rep,
		now:       time.Now,
	}
}

// Record normalizes and durably persists a tenant's batch. The raw log
// write is the authoritative outcome; counter updates and downstream
// publishing degrade gracefully, and identity backfill is never awaited.
func (r *Recorder) Record(ctx context.Context, tenantID string, envs []event.Envelope) (Result, error) {
	if tenantID == "" {
		return Result{}, ErrNoTenant
	}
	if len(envs) == 0 {
		return Result{}, ErrNoEvents
	}

	now := r.now()
	events := make([]event.Event, 0, len(envs))
	for _, env := range envs {
		events = append(events, event.Normalize(env, tenantID, now, r.rep))
	}

	if _, err := r.events.InsertBatch(ctx, events); err != nil {
		return Result{}, fmt.Errorf("persist event batch: %w", err)
	}

	res := Result{Accepted: len(events)}
	res.CountersLive = r.applyCounters(ctx, tenantID, events)

	for _, ev := range events {
		if ev.IsIdentity() && r.backfill != nil {
			r.backfill.Enqueue(tenantID, ev.VisitorID, ev.UserID)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, tenantID, events); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to publish event batch downstream")
		}
	}

	return res, nil
}

// applyCounters turns the batch into one counter round trip. Failure is
// logged, never surfaced: the raw log already holds the truth.
func (r *Recorder) applyCounters(ctx context.Context, tenantID string, events []event.Event) bool {
	if r.counters == nil {
		return false
	}

	batch := counter.Batch{Updates: make([]counter.Update, 0, len(events)*4)}
	scope := counter.Scope{TenantID: tenantID}

	for _, ev := range events {
		key := counter.Key{Scope: scope, Date: r.rep.DateKey(ev.CapturedAt), Event: ev.Name}
		dims := []counter.Dimension{
			counter.Total(),
			counter.ByHour(r.rep.Hour(ev.CapturedAt)),
			counter.ByPlatform(string(ev.Platform)),
			counter.BySystem(string(ev.System)),
		}
		for _, dim := range dims {
			batch.Updates = append(batch.Updates, counter.Update{
				Key:       key,
				Dim:       dim,
				VisitorID: ev.VisitorID,
			})
		}
		if ev.IsIdentity() {
			batch.Identities = append(batch.Identities, counter.Identity{
				TenantID:  tenantID,
				VisitorID: ev.VisitorID,
				UserID:    ev.UserID,
			})
		}
	}

	if err := r.counters.Apply(ctx, batch); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Int("events", len(events)).
			Msg("Live counter update failed, raw log remains authoritative")
		return false
	}
	return true
}
