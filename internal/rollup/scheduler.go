package rollup

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the job on a cron schedule in the reporting timezone,
// targeting yesterday by default.
type Scheduler struct {
	c *cron.Cron
}

func NewScheduler(job *Job, spec string, loc *time.Location) (*Scheduler, error) {
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		summary, err := job.Run(context.Background(), "")
		if errors.Is(err, ErrRunInProgress) {
			log.Warn().Str("date", summary.Date).Msg("Skipped rollup run, previous run still holds the lock")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("date", summary.Date).Msg("Scheduled rollup run failed, will retry next schedule")
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{c: c}, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts scheduling and returns a context that completes when any
// in-flight run finishes.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}
