package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/vipinuengage/funnel-system/internal/event"
)

// ClickHouseArchive holds the connection to the cold analytical table
// that mirrors archived raw events.
type ClickHouseArchive struct {
	conn driver.Conn
}

func NewClickHouseArchive(ctx context.Context, addr, database, username, password string) (*ClickHouseArchive, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseArchive{conn: conn}, nil
}

// EnsureSchema creates the archive table when absent.
func (a *ClickHouseArchive) EnsureSchema(ctx context.Context) error {
	return a.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events_archive (
			tenant_id   String,
			visitor_id  String,
			user_id     String,
			event       String,
			url         String,
			platform    String,
			system      String,
			metadata    String,
			captured_at DateTime64(3),
			inserted_at DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (tenant_id, captured_at)
	`)
}

// NewSink returns a fresh buffered sink for one archival run.
func (a *ClickHouseArchive) NewSink() *ClickHouseSink {
	return &ClickHouseSink{conn: a.conn}
}

func (a *ClickHouseArchive) Close() error {
	return a.conn.Close()
}

// ClickHouseSink buffers one run's events and sends them as a single
// batch on Flush.
type ClickHouseSink struct {
	conn driver.Conn
	rows []event.Event
}

func (s *ClickHouseSink) Write(ev event.Event) error {
	s.rows = append(s.rows, ev)
	return nil
}

func (s *ClickHouseSink) Flush() error {
	if len(s.rows) == 0 {
		return nil
	}

	ctx := context.Background()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO events_archive (
			tenant_id, visitor_id, user_id, event, url,
			platform, system, metadata, captured_at, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}

	for _, ev := range s.rows {
		meta := ""
		if ev.Metadata != nil {
			b, err := json.Marshal(ev.Metadata)
			if err != nil {
				return fmt.Errorf("marshal archived metadata: %w", err)
			}
			meta = string(b)
		}
		if err := batch.Append(
			ev.TenantID, ev.VisitorID, ev.UserID, ev.Name, ev.URL,
			string(ev.Platform), string(ev.System), meta, ev.CapturedAt, ev.InsertedAt,
		); err != nil {
			return err
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	s.rows = s.rows[:0]
	return nil
}

func (s *ClickHouseSink) Close() error { return nil }

func (s *ClickHouseSink) Name() string { return "clickhouse:events_archive" }
