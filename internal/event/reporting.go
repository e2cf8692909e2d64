package event

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day key used everywhere a date scopes data:
// counter buckets, rollup rows and archive file names.
const DateLayout = "2006-01-02"

// Reporting carries the fixed reporting timezone and derives every daily
// window and hour-of-day bucket from it.
type Reporting struct {
	loc *time.Location
}

// NewReporting loads the named timezone, e.g. "Asia/Kolkata".
func NewReporting(name string) (Reporting, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Reporting{}, fmt.Errorf("load reporting timezone %q: %w", name, err)
	}
	return Reporting{loc: loc}, nil
}

// ReportingIn wraps an already-loaded location. Used by tests.
func ReportingIn(loc *time.Location) Reporting {
	return Reporting{loc: loc}
}

func (r Reporting) Location() *time.Location {
	if r.loc == nil {
		return time.UTC
	}
	return r.loc
}

// DateKey returns the calendar day of t in the reporting timezone.
func (r Reporting) DateKey(t time.Time) string {
	return t.In(r.Location()).Format(DateLayout)
}

// Hour returns the hour-of-day bucket (0..23) of t in the reporting timezone.
func (r Reporting) Hour(t time.Time) int {
	return t.In(r.Location()).Hour()
}

// DayWindow returns the half-open [start, end) window covering the given
// calendar day in the reporting timezone.
func (r Reporting) DayWindow(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, r.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return day, day.AddDate(0, 0, 1), nil
}

// Today returns the current reporting day.
func (r Reporting) Today(now time.Time) string {
	return r.DateKey(now)
}

// Yesterday returns the reporting day before now, the default rollup target.
func (r Reporting) Yesterday(now time.Time) string {
	return r.DateKey(now.In(r.Location()).AddDate(0, 0, -1))
}
