package archive

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vipinuengage/funnel-system/internal/event"
)

func TestFileSinkWritesNJSON(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir, "2025-01-10", 1736484300000)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "events-2025-01-10-1736484300000.njson"), sink.Name())

	events := []event.Event{
		{TenantID: "t1", VisitorID: "v1", Name: "visit", Platform: event.PlatformWebsite, System: event.SystemUnknown,
			CapturedAt: time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)},
		{TenantID: "t1", VisitorID: "v2", Name: "conversion", Platform: event.PlatformApplication, System: event.SystemAndroid,
			Metadata:   map[string]any{"transaction_id": "tx-1"},
			CapturedAt: time.Date(2025, 1, 10, 11, 0, 0, 0, time.UTC)},
	}
	for _, ev := range events {
		require.NoError(t, sink.Write(ev))
	}
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(sink.Name())
	require.NoError(t, err)

	var lines []event.Event
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var ev event.Event
		require.NoError(t, dec.Decode(&ev))
		lines = append(lines, ev)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, "visit", lines[0].Name)
	assert.Equal(t, "conversion", lines[1].Name)
	assert.Equal(t, "tx-1", lines[1].Metadata["transaction_id"])
}

func TestFileSinkCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	sink, err := NewFileSink(dir, "2025-01-10", 1)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = os.Stat(sink.Name())
	assert.NoError(t, err)
}

func TestOpenerReturnsFileSink(t *testing.T) {
	dir := t.TempDir()
	o := NewOpener(dir, nil)
	o.nowMillis = func() int64 { return 42 }

	sinks, err := o.Open("2025-01-10")
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, filepath.Join(dir, "events-2025-01-10-42.njson"), sinks[0].Name())
	require.NoError(t, sinks[0].Close())
}
