package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipinuengage/funnel-system/internal/counter"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
)

type backfillCall struct {
	tenantID, visitorID, userID string
}

type fakeEventStore struct {
	mu          sync.Mutex
	inserted    []event.Event
	insertErr   error
	backfills   []backfillCall
	backfillErr error
}

func (f *fakeEventStore) InsertBatch(ctx context.Context, events []event.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, events...)
	return int64(len(events)), nil
}

func (f *fakeEventStore) BackfillUserID(ctx context.Context, tenantID, visitorID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backfillErr != nil {
		return 0, f.backfillErr
	}
	f.backfills = append(f.backfills, backfillCall{tenantID, visitorID, userID})
	var n int64
	for i := range f.inserted {
		if f.inserted[i].TenantID == tenantID && f.inserted[i].VisitorID == visitorID && f.inserted[i].UserID == "" {
			f.inserted[i].UserID = userID
			n++
		}
	}
	return n, nil
}

func (f *fakeEventStore) AggregateWindow(ctx context.Context, tenantID string, w store.Window) ([]store.AggRow, error) {
	return nil, nil
}

func (f *fakeEventStore) StreamWindow(ctx context.Context, w store.Window, fn func(event.Event) error) (int64, error) {
	return 0, nil
}

func (f *fakeEventStore) DeleteWindow(ctx context.Context, w store.Window) (int64, error) {
	return 0, nil
}

func (f *fakeEventStore) UnidentifiedCount(ctx context.Context, tenantID, visitorID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.inserted {
		if ev.TenantID == tenantID && ev.VisitorID == visitorID && ev.UserID == "" {
			n++
		}
	}
	return n, nil
}

type failingCounters struct{ counter.Store }

func (failingCounters) Apply(ctx context.Context, batch counter.Batch) error {
	return errors.New("counters down")
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]event.Event
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, tenantID string, events []event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

var testTime = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

func newTestRecorder(events store.EventStore, counters counter.Store) *Recorder {
	r := New(events, counters, nil, nil, event.ReportingIn(time.UTC))
	r.now = func() time.Time { return testTime }
	return r
}

func TestRecordValidation(t *testing.T) {
	r := newTestRecorder(&fakeEventStore{}, counter.NewMemory())
	ctx := context.Background()

	_, err := r.Record(ctx, "", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	assert.ErrorIs(t, err, ErrNoTenant)

	_, err = r.Record(ctx, "t1", nil)
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestRecordPersistsAndCounts(t *testing.T) {
	ctx := context.Background()
	events := &fakeEventStore{}
	counters := counter.NewMemory()
	r := newTestRecorder(events, counters)

	res, err := r.Record(ctx, "t1", []event.Envelope{
		{Name: "visit", VisitorID: "v1"},
		{Name: "visit", VisitorID: "v1"},
		{Name: "signup", VisitorID: "v2", Platform: "application", System: "android"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Accepted)
	assert.True(t, res.CountersLive)

	require.Len(t, events.inserted, 3)
	for _, ev := range events.inserted {
		assert.Equal(t, "t1", ev.TenantID)
		assert.False(t, ev.InsertedAt.IsZero())
	}

	key := counter.Key{Scope: counter.Scope{TenantID: "t1"}, Date: "2025-01-10", Event: "visit"}
	count, err := counters.Count(ctx, key, counter.Total())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	uv, err := counters.Distinct(ctx, key, counter.Total())
	require.NoError(t, err)
	assert.Equal(t, int64(1), uv)

	hourCount, err := counters.Count(ctx, key, counter.ByHour(10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), hourCount)

	signupKey := counter.Key{Scope: counter.Scope{TenantID: "t1"}, Date: "2025-01-10", Event: "signup"}
	platCount, err := counters.Count(ctx, signupKey, counter.ByPlatform("application"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), platCount)

	sysCount, err := counters.Count(ctx, signupKey, counter.BySystem("android"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sysCount)

	names, err := counters.EventNames(ctx, counter.Scope{TenantID: "t1"}, "2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"signup", "visit"}, names)
}

func TestRecordInsertFailureFailsCall(t *testing.T) {
	events := &fakeEventStore{insertErr: errors.New("db down")}
	r := newTestRecorder(events, counter.NewMemory())

	_, err := r.Record(context.Background(), "t1", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	assert.Error(t, err)
}

func TestRecordCounterFailureDegrades(t *testing.T) {
	r := newTestRecorder(&fakeEventStore{}, failingCounters{})

	res, err := r.Record(context.Background(), "t1", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.False(t, res.CountersLive)
}

func TestRecordWithoutCounters(t *testing.T) {
	r := newTestRecorder(&fakeEventStore{}, nil)

	res, err := r.Record(context.Background(), "t1", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	require.NoError(t, err)
	assert.False(t, res.CountersLive)
}

func TestRecordIdentityEvent(t *testing.T) {
	ctx := context.Background()
	events := &fakeEventStore{}
	counters := counter.NewMemory()
	backfill := NewBackfiller(events, 2, time.Second)
	r := New(events, counters, nil, backfill, event.ReportingIn(time.UTC))
	r.now = func() time.Time { return testTime }

	res, err := r.Record(ctx, "t1", []event.Envelope{
		{Name: event.NameLogin, VisitorID: "v1", UserID: "u1"},
		{Name: event.NameLogin, VisitorID: "v2"}, // no user id, no identity claim
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)

	backfill.Settle()
	assert.Equal(t, []backfillCall{{"t1", "v1", "u1"}}, events.backfills)
	assert.Equal(t, int64(0), backfill.Failures())

	user, err := counters.Identity(ctx, "t1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user)

	user, err = counters.Identity(ctx, "t1", "v2")
	require.NoError(t, err)
	assert.Equal(t, "", user)
}

func TestBackfillFailureCounted(t *testing.T) {
	events := &fakeEventStore{backfillErr: errors.New("db down")}
	backfill := NewBackfiller(events, 1, time.Second)
	r := New(events, counter.NewMemory(), nil, backfill, event.ReportingIn(time.UTC))
	r.now = func() time.Time { return testTime }

	_, err := r.Record(context.Background(), "t1", []event.Envelope{
		{Name: event.NameLogin, VisitorID: "v1", UserID: "u1"},
	})
	require.NoError(t, err)

	backfill.Settle()
	assert.Equal(t, int64(1), backfill.Failures())
}

func TestRecordPublishesDownstream(t *testing.T) {
	pub := &fakePublisher{}
	r := New(&fakeEventStore{}, nil, pub, nil, event.ReportingIn(time.UTC))
	r.now = func() time.Time { return testTime }

	_, err := r.Record(context.Background(), "t1", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	require.NoError(t, err)
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 1)
}

func TestRecordPublishFailureSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	r := New(&fakeEventStore{}, nil, pub, nil, event.ReportingIn(time.UTC))
	r.now = func() time.Time { return testTime }

	res, err := r.Record(context.Background(), "t1", []event.Envelope{{Name: "visit", VisitorID: "v1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
}
