package watcher

import (
	"fmt"
	"time"
)

// MinutesPerDay is the number of minutes in a day.
const MinutesPerDay = 24 * 60

// Schedule computes when a job is next due.
type Schedule interface {
	// Next returns the first due time strictly after t.
	Next(t time.Time) time.Time
}

type interval struct {
	d time.Duration
}

// Every returns a schedule that fires every d.
func Every(d time.Duration) Schedule {
	return interval{d: d}
}

// Next keeps the monotonic reading of t, so interval jobs do not follow
// wall clock jumps.
func (s interval) Next(t time.Time) time.Time {
	return t.Add(s.d)
}

type daily struct {
	minute int
}

// DailyAt returns a schedule that fires once a day at the given minute of
// the day in UTC, the game's server time.
func DailyAt(minuteOfDay int) Schedule {
	return daily{minute: ((minuteOfDay % MinutesPerDay) + MinutesPerDay) % MinutesPerDay}
}

func (s daily) Next(t time.Time) time.Time {
	u := t.UTC()
	y, m, d := u.Date()
	next := time.Date(y, m, d, s.minute/60, s.minute%60, 0, 0, time.UTC)
	if !next.After(u) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseTimeOfDay parses "HH:MM" into a minute of the day.
func ParseTimeOfDay(s string) (int, error) {
	var hour, minute int
	if n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil || n != 2 || len(s) != 5 {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %q, out of range", s)
	}
	return hour*60 + minute, nil
}
