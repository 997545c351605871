// Package ratelimit tracks the ESI error limit window shared by every worker.
// ESI bans clients that exceed the error budget, so requests are blocked
// below a critical remaining count and slowed down below a warning count.
package ratelimit

import "time"

// Redis hash holding the shared error limit state.
const (
	RedisKey = "esi:error_limit"

	fieldRemain = "remain"
	fieldReset  = "reset"
)

// Thresholds for gate decisions.
const (
	// ThresholdCritical blocks every request below this many remaining errors.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests below this many remaining errors.
	ThresholdWarning = 20

	// defaultRemain is assumed until ESI has reported a value.
	defaultRemain = 100
)

// State is the last observed error limit window.
type State struct {
	Remain  int
	ResetAt time.Time
}

// Blocked reports whether requests must not be sent.
func (s State) Blocked(now time.Time) bool {
	return s.Remain < ThresholdCritical && now.Before(s.ResetAt)
}

// Throttled reports whether requests should be slowed down.
func (s State) Throttled(now time.Time) bool {
	return s.Remain < ThresholdWarning && !s.Blocked(now) && now.Before(s.ResetAt)
}

// UntilReset returns the time left in the window, or 0 once it has passed.
func (s State) UntilReset(now time.Time) time.Duration {
	if d := s.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
