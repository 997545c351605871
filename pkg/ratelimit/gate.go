package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	errorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketwatch_esi_errors_remaining",
		Help: "Errors remaining in the current ESI error limit window",
	})

	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_esi_gate_decisions_total",
		Help: "Error limit gate decisions by outcome",
	}, []string{"decision"})
)

// ErrBlocked is returned by Allow when the error budget is nearly exhausted.
var ErrBlocked = errors.New("esi error limit critical")

// Gate reads and writes the error limit state in Redis so that every session
// in the process, and every process sharing the Redis instance, backs off
// together.
type Gate struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration
	now      func() time.Time
}

// NewGate creates a gate. A nil redis client disables gating.
func NewGate(redisClient *redis.Client, logger zerolog.Logger) *Gate {
	return &Gate{
		redis:    redisClient,
		logger:   logger,
		throttle: time.Second,
		now:      time.Now,
	}
}

// State loads the current window. A missing key yields a healthy default.
func (g *Gate) State(ctx context.Context) (State, error) {
	healthy := State{Remain: defaultRemain}
	if g == nil || g.redis == nil {
		return healthy, nil
	}

	values, err := g.redis.HGetAll(ctx, RedisKey).Result()
	if err != nil {
		return State{}, fmt.Errorf("get error limit state: %w", err)
	}
	if len(values) == 0 {
		return healthy, nil
	}

	remain, err := strconv.Atoi(values[fieldRemain])
	if err != nil {
		return State{}, fmt.Errorf("parse %s: %w", fieldRemain, err)
	}
	reset, err := strconv.ParseInt(values[fieldReset], 10, 64)
	if err != nil {
		return State{}, fmt.Errorf("parse %s: %w", fieldReset, err)
	}
	return State{Remain: remain, ResetAt: time.Unix(reset, 0)}, nil
}

// Allow blocks briefly when throttled and returns ErrBlocked when requests
// must not be made at all.
func (g *Gate) Allow(ctx context.Context) error {
	if g == nil || g.redis == nil {
		return nil
	}

	state, err := g.State(ctx)
	if err != nil {
		// Redis trouble should not stop ingestion.
		g.logger.Warn().Err(err).Msg("Error limit state unavailable")
		return nil
	}

	now := g.now()
	switch {
	case state.Blocked(now):
		gateDecisions.WithLabelValues("blocked").Inc()
		g.logger.Error().
			Int("errors_remaining", state.Remain).
			Dur("reset_in", state.UntilReset(now)).
			Msg("ESI error limit critical, blocking request")
		return ErrBlocked
	case state.Throttled(now):
		gateDecisions.WithLabelValues("throttled").Inc()
		g.logger.Warn().Int("errors_remaining", state.Remain).Msg("ESI error limit low, throttling request")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.throttle):
		}
	default:
		gateDecisions.WithLabelValues("allowed").Inc()
	}
	return nil
}

// Observe records the error limit headers of a response. Responses without
// the headers are ignored.
func (g *Gate) Observe(ctx context.Context, headers http.Header) error {
	if g == nil || g.redis == nil {
		return nil
	}

	remainStr := headers.Get("X-ESI-Error-Limit-Remain")
	if remainStr == "" {
		return nil
	}
	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-ESI-Error-Limit-Remain: %w", err)
	}

	resetStr := headers.Get("X-ESI-Error-Limit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-ESI-Error-Limit-Reset header missing")
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse X-ESI-Error-Limit-Reset: %w", err)
	}

	resetAt := g.now().Add(time.Duration(resetSeconds) * time.Second)
	if err := g.redis.HSet(ctx, RedisKey, map[string]interface{}{
		fieldRemain: remain,
		fieldReset:  resetAt.Unix(),
	}).Err(); err != nil {
		return fmt.Errorf("store error limit state: %w", err)
	}

	errorsRemaining.Set(float64(remain))
	if remain < ThresholdWarning {
		g.logger.Warn().Int("errors_remaining", remain).Time("reset_at", resetAt).Msg("ESI error limit low")
	}
	return nil
}
