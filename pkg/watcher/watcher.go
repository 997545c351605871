// Package watcher drives ingestion: daily universe and market group
// refreshes plus interval order updates, each fanned out on the worker pool.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/logging"
	"github.com/Sternrassler/eve-marketwatch/pkg/search"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/tasks"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
	"github.com/rs/zerolog"
)

// Job names, also used as metric labels.
const (
	JobUniverse = "universe"
	JobGroups   = "groups"
	JobOrders   = "orders"
)

// Features toggles the parts of ingestion.
type Features struct {
	Regions bool
	Groups  bool
	Orders  bool
	Index   bool
}

// AllFeatures enables every part of ingestion.
func AllFeatures() Features {
	return Features{Regions: true, Groups: true, Orders: true, Index: true}
}

// TokenRefresher refreshes the bearer token used for structure lookups.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// Config holds watcher configuration.
type Config struct {
	Pool  *worker.Pool
	Store *store.Store

	// Global defaults to a new client.GlobalAPI.
	Global *client.GlobalAPI

	// Auth is refreshed before each order update. Optional.
	Auth TokenRefresher

	// Index is rebuilt after market groups refresh. Optional.
	Index *search.Index

	// Interval between order updates.
	Interval time.Duration

	// Poll is the sleep between scheduler ticks.
	Poll time.Duration

	// StaticTime and GroupTime are minutes of the day, in UTC, at which
	// the universe and market groups refresh.
	StaticTime int
	GroupTime  int

	Features Features

	// Now defaults to time.Now. Its monotonic reading drives interval
	// jobs; daily jobs convert to UTC themselves.
	Now func() time.Time
}

// Watcher is the scheduler loop. Run must not be called concurrently.
type Watcher struct {
	pool   *worker.Pool
	store  *store.Store
	global *client.GlobalAPI
	auth   TokenRefresher
	index  *search.Index

	poll     time.Duration
	features Features
	now      func() time.Time
	logger   zerolog.Logger

	universe *job
	groups   *job
	orders   *job

	universeDirty bool
	groupsDirty   bool

	mu      sync.Mutex
	regions map[int64]*client.RegionAPI
}

// New creates a watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Pool == nil {
		return nil, errors.New("pool is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive (got %s)", cfg.Interval)
	}
	if cfg.Poll <= 0 {
		return nil, fmt.Errorf("poll must be positive (got %s)", cfg.Poll)
	}

	w := &Watcher{
		pool:     cfg.Pool,
		store:    cfg.Store,
		global:   cfg.Global,
		auth:     cfg.Auth,
		index:    cfg.Index,
		poll:     cfg.Poll,
		features: cfg.Features,
		now:      cfg.Now,
		logger:   logging.NewLogger("watcher"),
		regions:  make(map[int64]*client.RegionAPI),
	}
	if w.global == nil {
		w.global = client.NewGlobalAPI()
	}
	if w.now == nil {
		w.now = time.Now
	}

	w.universe = &job{name: JobUniverse, schedule: DailyAt(cfg.StaticTime), run: w.updateUniverse}
	w.groups = &job{name: JobGroups, schedule: DailyAt(cfg.GroupTime), run: w.updateGroups}
	w.orders = &job{name: JobOrders, schedule: Every(cfg.Interval), run: w.updateOrders}
	return w, nil
}

func (w *Watcher) jobs() []*job {
	return []*job{w.universe, w.groups, w.orders}
}

// Run fires every job once, then ticks until ctx is done. Job failures are
// logged and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().Msg("Scheduling initial update jobs")
	w.RunOnce(ctx)

	w.logger.Info().Dur("poll", w.poll).Msg("Starting watcher loop")
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// RunOnce fires every job immediately, in universe, groups, orders order.
func (w *Watcher) RunOnce(ctx context.Context) {
	now := w.now()
	for _, j := range w.jobs() {
		if ctx.Err() != nil {
			return
		}
		_ = j.fire(ctx, w.logger, now)
	}
	w.writeCacheExpiry(ctx)
}

// Tick fires the jobs that are due, then writes pending cache expiry
// metadata.
func (w *Watcher) Tick(ctx context.Context) {
	startTime := time.Now()
	now := w.now()
	for _, j := range w.jobs() {
		if ctx.Err() != nil {
			return
		}
		if j.check(now) {
			_ = j.fire(ctx, w.logger, now)
		}
	}
	w.writeCacheExpiry(ctx)

	if elapsed := time.Since(startTime); elapsed > time.Second {
		w.logger.Info().Dur("elapsed", elapsed).Msg("Processed update")
	}
}

// State returns the scheduling state and next run time of a job.
func (w *Watcher) State(name string) (JobState, time.Time) {
	for _, j := range w.jobs() {
		if j.name == name {
			return j.state, j.nextRun
		}
	}
	return StateIdle, time.Time{}
}

// Regions returns the IDs of the regions orders are ingested for.
func (w *Watcher) Regions() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]int64, 0, len(w.regions))
	for id := range w.regions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// writeCacheExpiry stores the last and next run of a refresh once per
// refresh cycle.
func (w *Watcher) writeCacheExpiry(ctx context.Context) {
	if w.universeDirty {
		if err := w.store.SetUniverseCacheExpiry(ctx, w.universe.lastRun, w.universe.nextRun); err != nil {
			w.logger.Error().Err(err).Msg("Failed to store universe cache expiry")
		} else {
			w.universeDirty = false
		}
	}
	if w.groupsDirty {
		if err := w.store.SetMarketGroupCacheExpiry(ctx, w.groups.lastRun, w.groups.nextRun); err != nil {
			w.logger.Error().Err(err).Msg("Failed to store market group cache expiry")
		} else {
			w.groupsDirty = false
		}
	}
}

func (w *Watcher) updateUniverse(ctx context.Context, logger zerolog.Logger) error {
	if w.features.Regions {
		logger.Info().Msg("Updating universe")
		w.pool.Enqueue(tasks.UpdateRegions{Global: w.global})
		w.pool.Wait()
	} else {
		logger.Info().Msg("Skipping universe update")
	}

	w.universeDirty = true
	return w.syncRegions(ctx, logger)
}

// syncRegions matches the region APIs to the stored region list. Existing
// APIs are kept so their page state survives.
func (w *Watcher) syncRegions(ctx context.Context, logger zerolog.Logger) error {
	regionIDs, err := w.store.GetRegions(ctx)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	next := make(map[int64]*client.RegionAPI, len(regionIDs))
	for _, id := range regionIDs {
		if api, ok := w.regions[id]; ok {
			next[id] = api
			continue
		}
		logger.Debug().Int64("region_id", id).Msg("Adding regional API")
		next[id] = client.NewRegionAPI(id, w.global)
	}
	for id := range w.regions {
		if _, ok := next[id]; !ok {
			logger.Info().Int64("region_id", id).Msg("Dropping regional API")
		}
	}
	w.regions = next
	return nil
}

func (w *Watcher) updateGroups(ctx context.Context, logger zerolog.Logger) error {
	w.groupsDirty = true

	if !w.features.Groups {
		logger.Info().Msg("Skipping market group update")
		return nil
	}

	logger.Info().Msg("Updating market groups")
	w.pool.Enqueue(tasks.UpdateGroups{Global: w.global})
	w.pool.Wait()

	typeIDs, err := tasks.RebuildTypeList(ctx, w.store)
	if err != nil {
		return fmt.Errorf("rebuild type list: %w", err)
	}
	logger.Info().Int("types", len(typeIDs)).Msg("Item type list rebuilt")

	if w.features.Index && w.index != nil {
		if err := w.index.Rebuild(ctx, w.store); err != nil {
			return fmt.Errorf("rebuild search index: %w", err)
		}
	}
	return nil
}

func (w *Watcher) updateOrders(ctx context.Context, logger zerolog.Logger) error {
	if !w.features.Orders {
		logger.Info().Msg("Skipping order update")
		return nil
	}

	if w.auth != nil {
		// A failed refresh leaves no token, so structures are skipped.
		if err := w.auth.Refresh(ctx); err != nil {
			logger.Warn().Err(err).Msg("Continuing without bearer token")
		}
	}

	w.mu.Lock()
	empty := len(w.regions) == 0
	w.mu.Unlock()
	if empty {
		if err := w.syncRegions(ctx, logger); err != nil {
			return err
		}
	}

	regionIDs := w.Regions()
	logger.Info().Int("regions", len(regionIDs)).Msg("Updating orders for all regions")

	w.mu.Lock()
	for _, id := range regionIDs {
		w.pool.Enqueue(tasks.UpdateOrders{Region: w.regions[id]})
	}
	w.mu.Unlock()
	w.pool.Wait()
	return nil
}
