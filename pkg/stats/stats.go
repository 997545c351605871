// Package stats provides thread-safe request and update counters that
// workers accumulate between pool synchronization points.
package stats

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category selects which set of counters an update applies to.
type Category int

const (
	// Request counts remote API calls.
	Request Category = iota

	// Update counts store writes.
	Update

	numCategories
)

// String returns the display name of the category.
func (c Category) String() string {
	switch c {
	case Request:
		return "request"
	case Update:
		return "store"
	default:
		return "unknown"
	}
}

// Counters is a snapshot of one category.
type Counters struct {
	Total   int
	Changed int
	Failure int
	Elapsed time.Duration
}

// Avg returns the average elapsed time per event.
func (c Counters) Avg() time.Duration {
	if c.Total == 0 {
		return 0
	}
	return c.Elapsed / time.Duration(c.Total)
}

// Delta describes an increment applied with Update.
type Delta struct {
	Total   int
	Changed int
	Failure int
	Elapsed time.Duration
}

// Stats accumulates counters per category. The zero value is ready to use.
type Stats struct {
	mu       sync.Mutex
	counters [numCategories]Counters
}

// New returns an empty accumulator.
func New() *Stats {
	return &Stats{}
}

// Update adds d to the counters of category c. Unknown categories are ignored.
// A nil receiver is a no-op so callers can pass optional accumulators.
func (s *Stats) Update(c Category, d Delta) {
	if s == nil || c < 0 || c >= numCategories {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[c].Total += d.Total
	s.counters[c].Changed += d.Changed
	s.counters[c].Failure += d.Failure
	s.counters[c].Elapsed += d.Elapsed
}

// Get returns a snapshot of category c.
func (s *Stats) Get(c Category) Counters {
	if s == nil || c < 0 || c >= numCategories {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[c]
}

// Add folds other into s.
func (s *Stats) Add(other *Stats) {
	if s == nil || other == nil || s == other {
		return
	}
	snapshot := other.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.counters {
		s.counters[i].Total += snapshot[i].Total
		s.counters[i].Changed += snapshot[i].Changed
		s.counters[i].Failure += snapshot[i].Failure
		s.counters[i].Elapsed += snapshot[i].Elapsed
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = [numCategories]Counters{}
}

// Drain returns a copy of s and resets s in one step.
func (s *Stats) Drain() *Stats {
	out := &Stats{}
	if s == nil {
		return out
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out.counters = s.counters
	s.counters = [numCategories]Counters{}
	return out
}

// Log writes one event per non-empty category.
func (s *Stats) Log(logger zerolog.Logger, msg string) {
	for i, c := range s.snapshot() {
		if c.Total == 0 {
			continue
		}
		logger.Info().
			Str("category", Category(i).String()).
			Int("total", c.Total).
			Int("changed", c.Changed).
			Int("failures", c.Failure).
			Dur("elapsed", c.Elapsed).
			Dur("avg", c.Avg()).
			Msg(msg)
	}
}

func (s *Stats) snapshot() [numCategories]Counters {
	if s == nil {
		return [numCategories]Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
