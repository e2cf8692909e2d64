// Package rollup compacts a day's raw events into durable rollup records,
// archives the raw data and retires it from the event log.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/archive"
	"github.com/vipinuengage/funnel-system/internal/counter"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/store"
)

// ErrRunInProgress means another run already holds the per-date lock.
var ErrRunInProgress = errors.New("rollup run already in progress for date")

// SinkOpener creates the archive sinks for one run.
type SinkOpener interface {
	Open(date string) ([]archive.Sink, error)
}

// Summary reports one run's outcome.
type Summary struct {
	Date      string
	RunID     string
	Upserted  int
	Archived  int64
	Deleted   int64
	Artifacts []string
}

type Job struct {
	events  store.EventStore
	rollups store.RollupStore
	locks   counter.Store // nil disables the run lock
	sinks   SinkOpener
	rep     event.Reporting
	lockTTL time.Duration
	now     func() time.Time
}

func NewJob(events store.EventStore, rollups store.RollupStore, locks counter.Store, sinks SinkOpener, rep event.Reporting, lockTTL time.Duration) *Job {
	return &Job{
		events:  events,
		rollups: rollups,
		locks:   locks,
		sinks:   sinks,
		rep:     rep,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// Run compacts one date (default: yesterday in the reporting timezone).
// Re-running for the same date converges to identical rollup records:
// the upsert is a full overwrite and all of a run's rows commit in one
// transaction. Raw events are deleted only after every archive sink has
// confirmed its flush.
func (j *Job) Run(ctx context.Context, date string) (Summary, error) {
	now := j.now()
	if date == "" {
		date = j.rep.Yesterday(now)
	}
	start, end, err := j.rep.DayWindow(date)
	if err != nil {
		return Summary{}, err
	}
	window := store.Window{Start: start, End: end}

	summary := Summary{Date: date, RunID: uuid.New().String()}

	if j.locks != nil {
		ok, err := j.locks.AcquireRunLock(ctx, date, j.lockTTL)
		if err != nil {
			// Lock backend down. Proceed: overwrite semantics keep
			// concurrent runs convergent, just wasteful.
			log.Warn().Err(err).Str("date", date).Msg("Rollup run lock unavailable, proceeding unlocked")
		} else if !ok {
			return summary, ErrRunInProgress
		} else {
			defer func() {
				if err := j.locks.ReleaseRunLock(context.Background(), date); err != nil {
					log.Warn().Err(err).Str("date", date).Msg("Failed to release rollup run lock")
				}
			}()
		}
	}

	log.Info().Str("date", date).Str("run_id", summary.RunID).Msg("Starting rollup run")

	rows, err := j.events.AggregateWindow(ctx, "", window)
	if err != nil {
		return summary, fmt.Errorf("aggregate window %s: %w", date, err)
	}

	acc := newAccumulator()
	for _, row := range rows {
		acc.add(row)
	}
	rollups := acc.finalize(date, now)

	if err := j.rollups.UpsertAll(ctx, rollups); err != nil {
		return summary, fmt.Errorf("upsert rollups for %s: %w", date, err)
	}
	summary.Upserted = len(rollups)

	if len(rows) == 0 {
		log.Info().Str("date", date).Msg("No events in window, nothing to archive")
		return summary, nil
	}

	archived, artifacts, err := j.archiveWindow(ctx, date, window)
	summary.Archived = archived
	summary.Artifacts = artifacts
	if err != nil {
		// Deletion is blocked; rollups stay since they are recomputable.
		return summary, fmt.Errorf("archive window %s: %w", date, err)
	}

	deleted, err := j.events.DeleteWindow(ctx, window)
	summary.Deleted = deleted
	if err != nil {
		return summary, fmt.Errorf("delete archived events for %s: %w", date, err)
	}

	log.Info().
		Str("date", date).
		Str("run_id", summary.RunID).
		Int("upserted", summary.Upserted).
		Int64("archived", summary.Archived).
		Int64("deleted", summary.Deleted).
		Strs("artifacts", summary.Artifacts).
		Msg("Rollup run complete")
	return summary, nil
}

// archiveWindow streams every raw record of the window into each sink
// and confirms every flush. Only a fully confirmed archive permits the
// caller to delete.
func (j *Job) archiveWindow(ctx context.Context, date string, window store.Window) (int64, []string, error) {
	sinks, err := j.sinks.Open(date)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.Warn().Err(err).Str("sink", s.Name()).Msg("Failed to close archive sink")
			}
		}
	}()

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}

	archived, err := j.events.StreamWindow(ctx, window, func(ev event.Event) error {
		for _, s := range sinks {
			if err := s.Write(ev); err != nil {
				return fmt.Errorf("write to %s: %w", s.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return archived, names, err
	}

	for _, s := range sinks {
		if err := s.Flush(); err != nil {
			return archived, names, fmt.Errorf("flush %s: %w", s.Name(), err)
		}
	}
	return archived, names, nil
}
