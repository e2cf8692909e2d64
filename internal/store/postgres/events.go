package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
)

var eventColumns = []string{
	"tenant_id", "visitor_id", "user_id", "event", "url",
	"platform", "system", "metadata", "captured_at", "inserted_at",
}

func (s *Store) InsertBatch(ctx context.Context, events []event.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(events))
	for _, ev := range events {
		var userID any
		if ev.UserID != "" {
			userID = ev.UserID
		}
		var meta any
		if ev.Metadata != nil {
			b, err := json.Marshal(ev.Metadata)
			if err != nil {
				return 0, fmt.Errorf("marshal event metadata: %w", err)
			}
			meta = b
		}
		rows = append(rows, []any{
			ev.TenantID, ev.VisitorID, userID, ev.Name, ev.URL,
			string(ev.Platform), string(ev.System), meta, ev.CapturedAt, ev.InsertedAt,
		})
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("bulk insert events: %w", err)
	}
	return n, nil
}

func (s *Store) BackfillUserID(ctx context.Context, tenantID, visitorID, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events
		SET user_id = $3
		WHERE tenant_id = $1 AND visitor_id = $2 AND user_id IS NULL
	`, tenantID, visitorID, userID)
	if err != nil {
		return 0, fmt.Errorf("backfill user id: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) AggregateWindow(ctx context.Context, tenantID string, w store.Window) ([]store.AggRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			tenant_id,
			event,
			EXTRACT(HOUR FROM captured_at AT TIME ZONE $3)::int AS hour,
			platform,
			system,
			COUNT(*)::bigint,
			ARRAY_AGG(DISTINCT visitor_id),
			COALESCE(
				ARRAY_AGG(DISTINCT metadata->>'transaction_id')
					FILTER (WHERE metadata->>'transaction_id' IS NOT NULL),
				'{}'
			)
		FROM events
		WHERE captured_at >= $1 AND captured_at < $2
		  AND ($4 = '' OR tenant_id = $4)
		GROUP BY 1, 2, 3, 4, 5
	`, w.Start, w.End, s.tz, tenantID)
	if err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	defer rows.Close()

	var out []store.AggRow
	for rows.Next() {
		var r store.AggRow
		if err := rows.Scan(&r.TenantID, &r.Event, &r.Hour, &r.Platform, &r.System,
			&r.Count, &r.Visitors, &r.Transactions); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate events: %w", err)
	}
	return out, nil
}

func (s *Store) StreamWindow(ctx context.Context, w store.Window, fn func(event.Event) error) (int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, visitor_id, COALESCE(user_id, ''), event, url,
		       platform, system, metadata, captured_at, inserted_at
		FROM events
		WHERE captured_at >= $1 AND captured_at < $2
		ORDER BY captured_at
	`, w.Start, w.End)
	if err != nil {
		return 0, fmt.Errorf("stream events: %w", err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var ev event.Event
		var platform, system string
		var meta []byte
		if err := rows.Scan(&ev.TenantID, &ev.VisitorID, &ev.UserID, &ev.Name, &ev.URL,
			&platform, &system, &meta, &ev.CapturedAt, &ev.InsertedAt); err != nil {
			return n, fmt.Errorf("scan event row: %w", err)
		}
		ev.Platform = event.Platform(platform)
		ev.System = event.System(system)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return n, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		if err := fn(ev); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("stream events: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteWindow(ctx context.Context, w store.Window) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM events WHERE captured_at >= $1 AND captured_at < $2
	`, w.Start, w.End)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) UnidentifiedCount(ctx context.Context, tenantID, visitorID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM events
		WHERE tenant_id = $1 AND visitor_id = $2 AND user_id IS NULL
	`, tenantID, visitorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unidentified events: %w", err)
	}
	return n, nil
}
