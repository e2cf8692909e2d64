package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestNormalizeCapturedAt(t *testing.T) {
	rep := ReportingIn(ist)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, ist)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"space separated", "2025-01-10 10:00:00", time.Date(2025, 1, 10, 10, 0, 0, 0, ist)},
		{"rfc3339", "2025-01-10T10:00:00+05:30", time.Date(2025, 1, 10, 10, 0, 0, 0, ist)},
		{"date only", "2025-01-10", time.Date(2025, 1, 10, 0, 0, 0, 0, ist)},
		{"absent", "", now},
		{"garbage", "not a timestamp", now},
		{"whitespace", "   ", now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Normalize(Envelope{Name: "visit", VisitorID: "v1", CapturedAt: tt.raw}, "t1", now, rep)
			assert.True(t, ev.CapturedAt.Equal(tt.want), "got %v want %v", ev.CapturedAt, tt.want)
		})
	}
}

func TestNormalizeStampsTenantAndDefaults(t *testing.T) {
	rep := ReportingIn(ist)
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, ist)

	ev := Normalize(Envelope{Name: "visit", VisitorID: "v1", Platform: "APPLICATION", System: "bogus-os"}, "t1", now, rep)

	assert.Equal(t, "t1", ev.TenantID)
	assert.Equal(t, PlatformApplication, ev.Platform)
	assert.Equal(t, SystemUnknown, ev.System)
	assert.True(t, ev.InsertedAt.Equal(now))
}

func TestNormalizePlatform(t *testing.T) {
	assert.Equal(t, PlatformWebsite, NormalizePlatform(""))
	assert.Equal(t, PlatformWebsite, NormalizePlatform("web"))
	assert.Equal(t, PlatformApplication, NormalizePlatform("application"))
}

func TestNormalizeSystem(t *testing.T) {
	assert.Equal(t, SystemAndroid, NormalizeSystem("Android"))
	assert.Equal(t, SystemUnknown, NormalizeSystem(""))
	assert.Equal(t, SystemUnknown, NormalizeSystem("beos"))
}

func TestReportingBuckets(t *testing.T) {
	rep := ReportingIn(ist)

	// 20:00 UTC on Jan 9 is 01:30 IST on Jan 10.
	utcEvening := time.Date(2025, 1, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-10", rep.DateKey(utcEvening))
	assert.Equal(t, 1, rep.Hour(utcEvening))

	local := time.Date(2025, 1, 10, 10, 30, 0, 0, ist)
	assert.Equal(t, "2025-01-10", rep.DateKey(local))
	assert.Equal(t, 10, rep.Hour(local))
}

func TestDayWindow(t *testing.T) {
	rep := ReportingIn(ist)

	start, end, err := rep.DayWindow("2025-01-10")
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, ist)))
	assert.True(t, end.Equal(time.Date(2025, 1, 11, 0, 0, 0, 0, ist)))

	_, _, err = rep.DayWindow("10-01-2025")
	assert.Error(t, err)
}

func TestYesterday(t *testing.T) {
	rep := ReportingIn(ist)
	now := time.Date(2025, 1, 10, 0, 30, 0, 0, ist)
	assert.Equal(t, "2025-01-09", rep.Yesterday(now))
	assert.Equal(t, "2025-01-10", rep.Today(now))
}

func TestIsIdentity(t *testing.T) {
	assert.True(t, Event{Name: NameLogin, VisitorID: "v1", UserID: "u1"}.IsIdentity())
	assert.False(t, Event{Name: NameLogin, VisitorID: "v1"}.IsIdentity())
	assert.False(t, Event{Name: NameLogin, UserID: "u1"}.IsIdentity())
	assert.False(t, Event{Name: "visit", VisitorID: "v1", UserID: "u1"}.IsIdentity())
}

func TestTransactionID(t *testing.T) {
	assert.Equal(t, "", Event{}.TransactionID())
	assert.Equal(t, "", Event{Metadata: map[string]any{}}.TransactionID())
	assert.Equal(t, "tx-1", Event{Metadata: map[string]any{"transaction_id": " tx-1 "}}.TransactionID())
	// JSON numbers decode as float64.
	assert.Equal(t, "42", Event{Metadata: map[string]any{"transaction_id": float64(42)}}.TransactionID())
	assert.Equal(t, "42.5", Event{Metadata: map[string]any{"transaction_id": 42.5}}.TransactionID())
	assert.Equal(t, "7", Event{Metadata: map[string]any{"transaction_id": 7}}.TransactionID())
	assert.Equal(t, "", Event{Metadata: map[string]any{"transaction_id": true}}.TransactionID())
}
