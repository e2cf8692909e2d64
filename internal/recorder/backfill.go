package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/store"
)

// Backfiller rewrites a visitor's prior unidentified events once an
// identity event resolves them to a user. Tasks are fire-and-forget with
// a bounded number in flight; the request path never waits on them. The
// rewrite only touches rows with no user id, so reapplying it is a no-op.
type Backfiller struct {
	events   store.EventStore
	sem      chan struct{}
	timeout  time.Duration
	wg       sync.WaitGroup
	failures atomic.Int64
}

func NewBackfiller(events store.EventStore, maxInFlight int, timeout time.Duration) *Backfiller {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Backfiller{
		events:  events,
		sem:     make(chan struct{}, maxInFlight),
		timeout: timeout,
	}
}

// Enqueue schedules one rewrite and returns immediately.
func (b *Backfiller) Enqueue(tenantID, visitorID, userID string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sem <- struct{}{}
		defer func() { <-b.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		n, err := b.events.BackfillUserID(ctx, tenantID, visitorID, userID)
		if err != nil {
			b.failures.Add(1)
			log.Error().Err(err).
				Str("tenant_id", tenantID).
				Str("visitor_id", visitorID).
				Msg("Identity backfill failed")
			return
		}
		if n > 0 {
			log.Debug().
				Str("tenant_id", tenantID).
				Str("visitor_id", visitorID).
				Int64("rewritten", n).
				Msg("Backfilled visitor events with user id")
		}
	}()
}

// Settle blocks until every enqueued task has finished. Used at shutdown
// and as the observation point in tests.
func (b *Backfiller) Settle() {
	b.wg.Wait()
}

// Failures returns the number of tasks that errored since start.
func (b *Backfiller) Failures() int64 {
	return b.failures.Load()
}
