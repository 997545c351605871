package client

import (
	"context"
	"fmt"
	"time"
)

// retry runs fn until it succeeds, fails terminally, or the attempt budget
// runs out. The wait after the n-th failed attempt is n times the base
// backoff. Terminal failures are wrapped with ErrAbandoned and exhausted
// budgets with ErrRetryExhausted so callers can tell them apart.
func (s *Session) retry(ctx context.Context, category string, fn func() error) error {
	attempts := s.client.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				s.logger.Debug().
					Str("category", category).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !IsTransient(err) {
			return fmt.Errorf("%w: %w", ErrAbandoned, err)
		}
		if attempt == attempts {
			break
		}

		class := string(ClassOf(err))
		esiRetriesTotal.WithLabelValues(class).Inc()

		backoff := s.client.config.RetryBackoff * time.Duration(attempt)
		s.logger.Debug().
			Err(err).
			Str("category", category).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	esiRetryExhaustedTotal.WithLabelValues(string(ClassOf(lastErr))).Inc()
	s.logger.Warn().
		Err(lastErr).
		Str("category", category).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
