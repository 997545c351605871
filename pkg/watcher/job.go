package watcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketwatch_job_runs_total",
		Help: "Watcher job runs by job",
	}, []string{"job"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketwatch_job_duration_seconds",
		Help:    "Watcher job duration by job",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"job"})
)

// JobState is the scheduling state of a job.
type JobState int

const (
	// StateIdle waits for the next due time.
	StateIdle JobState = iota

	// StateDue has passed its due time and fires on the current tick.
	StateDue

	// StateRunning is executing.
	StateRunning
)

func (s JobState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDue:
		return "due"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// job moves through idle -> due -> running -> idle. Only the watcher loop
// touches it.
type job struct {
	name     string
	schedule Schedule
	run      func(ctx context.Context, logger zerolog.Logger) error

	state   JobState
	lastRun time.Time
	nextRun time.Time
}

// check marks the job due once now reaches its next run time.
func (j *job) check(now time.Time) bool {
	if j.state == StateIdle && !now.Before(j.nextRun) {
		j.state = StateDue
	}
	return j.state == StateDue
}

// fire runs the job and schedules the next run relative to the start time.
func (j *job) fire(ctx context.Context, logger zerolog.Logger, now time.Time) error {
	j.state = StateRunning
	j.lastRun = now

	runLog := logger.With().
		Str("job", j.name).
		Str("run_id", uuid.NewString()).
		Logger()
	runLog.Info().Msg("Job started")

	startTime := time.Now()
	err := j.run(ctx, runLog)
	elapsed := time.Since(startTime)

	jobRuns.WithLabelValues(j.name).Inc()
	jobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())

	j.nextRun = j.schedule.Next(now)
	j.state = StateIdle

	event := runLog.Info()
	if err != nil {
		event = runLog.Error().Err(err)
	}
	event.Dur("elapsed", elapsed).Time("next_run", j.nextRun).Msg("Job finished")
	return err
}
