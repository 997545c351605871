package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/eve-marketwatch/internal/testutil"
	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/search"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type refresher struct {
	calls int
	err   error
}

func (r *refresher) Refresh(ctx context.Context) error {
	r.calls++
	return r.err
}

type fixture struct {
	mock    *testutil.MockESI
	mr      *miniredis.Miniredis
	store   *store.Store
	index   *search.Index
	clock   *clock
	watcher *Watcher
}

func newFixture(t *testing.T, features Features, auth TokenRefresher) *fixture {
	t.Helper()

	mock := testutil.NewMockESI()
	t.Cleanup(mock.Close)
	seedUniverse(mock)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	st := store.New(rdb)

	cfg := client.DefaultConfig("marketwatch-test/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 0
	cfg.RetryBackoff = time.Millisecond
	c, err := client.New(cfg)
	require.NoError(t, err)

	pool, err := worker.New(worker.Config{Size: 2, Client: c, Store: st})
	require.NoError(t, err)
	pool.Start(context.Background())
	t.Cleanup(pool.Close)

	clk := &clock{now: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}
	index := search.New(zerolog.Nop())
	w, err := New(Config{
		Pool:       pool,
		Store:      st,
		Auth:       auth,
		Index:      index,
		Interval:   10 * time.Minute,
		Poll:       time.Second,
		StaticTime: 11*60 + 5,
		GroupTime:  11*60 + 5,
		Features:   features,
		Now:        clk.Now,
	})
	require.NoError(t, err)

	return &fixture{mock: mock, mr: mr, store: st, index: index, clock: clk, watcher: w}
}

func seedUniverse(m *testutil.MockESI) {
	m.SetJSON("/universe/regions/", []int64{10000002})
	m.SetJSON("/universe/regions/10000002/", client.Region{RegionID: 10000002, Name: "The Forge", Constellations: []int64{20000020}})
	m.SetJSON("/universe/constellations/20000020/", client.Constellation{ConstellationID: 20000020, Systems: []int64{30000142}})
	m.SetJSON("/universe/systems/30000142/", client.System{SystemID: 30000142, Name: "Jita", SecurityStatus: 0.9459})
	m.SetJSON("/markets/groups/", []int64{1857})
	m.SetJSON("/markets/groups/1857/", client.MarketGroup{MarketGroupID: 1857, Name: "Minerals", Types: []int64{34}})
	m.SetJSON("/universe/types/34/", client.ItemType{TypeID: 34, Name: "Tritanium", MarketGroupID: 1857})
	m.SetJSON("/universe/stations/60003760/", client.Location{StationID: 60003760, Name: "Jita IV - Moon 4", SystemID: 30000142})
	m.SetPages("/markets/10000002/orders/", []client.Order{{
		OrderID:      6000000001,
		TypeID:       34,
		SystemID:     30000142,
		LocationID:   60003760,
		VolumeTotal:  1000,
		VolumeRemain: 1000,
		Price:        5.00,
		Range:        "region",
		Issued:       time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
		Duration:     90,
	}})
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_DefaultClockIsMonotonic(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pool, err := worker.New(worker.Config{Size: 1})
	require.NoError(t, err)

	w, err := New(Config{Pool: pool, Store: store.New(rdb), Interval: time.Minute, Poll: time.Second})
	require.NoError(t, err)
	assert.Contains(t, w.now().String(), "m=")
}

func TestRunOnce_IngestsEverything(t *testing.T) {
	f := newFixture(t, AllFeatures(), nil)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)

	assert.Equal(t, []int64{10000002}, f.watcher.Regions())

	orders, err := f.store.GetOrders(ctx, 10000002, 34, 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 5.00, orders[0].Price)

	types, err := f.store.GetTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{34}, types)

	locations, err := f.store.GetLocations(ctx, 10000002)
	require.NoError(t, err)
	assert.Equal(t, []int64{60003760}, locations)

	hits := f.index.Query(search.Type, "trit", 0, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(34), hits[0].ID)
	assert.Equal(t, 1, f.index.Len(search.System))

	expiry, err := f.store.GetUniverseCacheExpiry(ctx)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(expiry.Modified))
	assert.True(t, time.Date(2026, 10, 15, 11, 5, 0, 0, time.UTC).Equal(expiry.Expires))

	groups, err := f.store.GetMarketGroupCacheExpiry(ctx)
	require.NoError(t, err)
	assert.False(t, groups.Modified.IsZero())

	state, next := f.watcher.State(JobOrders)
	assert.Equal(t, StateIdle, state)
	assert.True(t, f.clock.Now().Add(10*time.Minute).Equal(next))
}

func TestTick_FiresOnlyDueJobs(t *testing.T) {
	f := newFixture(t, AllFeatures(), nil)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)
	f.mock.Reset()

	f.clock.Advance(time.Minute)
	f.watcher.Tick(ctx)
	assert.Zero(t, f.mock.GetRequestCount())

	f.clock.Advance(9 * time.Minute)
	f.watcher.Tick(ctx)
	assert.Equal(t, 1, f.mock.Requests("/markets/10000002/orders/"))
	assert.Zero(t, f.mock.Requests("/universe/regions/"))
	assert.Equal(t, 1, f.mock.GetNotModifiedCount())

	// Daily refresh at 11:05 the next day.
	f.clock.Advance(23 * time.Hour)
	f.watcher.Tick(ctx)
	assert.Equal(t, 1, f.mock.Requests("/universe/regions/"))
	assert.Equal(t, 1, f.mock.Requests("/markets/groups/"))
}

func TestCacheExpiry_WrittenOncePerRefresh(t *testing.T) {
	f := newFixture(t, AllFeatures(), nil)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)
	f.mr.Del("rc")
	f.mr.Del("mc")

	f.clock.Advance(10 * time.Minute)
	f.watcher.Tick(ctx)
	assert.False(t, f.mr.Exists("rc"))
	assert.False(t, f.mr.Exists("mc"))
}

func TestUniverseRefresh_KeepsRegionAPIs(t *testing.T) {
	f := newFixture(t, AllFeatures(), nil)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)
	before := f.watcher.regions[10000002]
	require.NotNil(t, before)

	f.mock.SetJSON("/universe/regions/", []int64{10000002, 10000043})
	f.mock.SetJSON("/universe/regions/10000043/", client.Region{RegionID: 10000043, Name: "Domain"})
	require.NoError(t, f.universe())

	assert.Equal(t, []int64{10000002, 10000043}, f.watcher.Regions())
	assert.Same(t, before, f.watcher.regions[10000002])

	f.mock.SetJSON("/universe/regions/", []int64{10000043})
	require.NoError(t, f.universe())
	assert.Equal(t, []int64{10000043}, f.watcher.Regions())
}

func (f *fixture) universe() error {
	return f.watcher.updateUniverse(context.Background(), zerolog.Nop())
}

func TestFeatures_Disabled(t *testing.T) {
	f := newFixture(t, Features{}, nil)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)
	assert.Zero(t, f.mock.GetRequestCount())

	// Cache expiry is still recorded for the skipped refreshes.
	assert.True(t, f.mr.Exists("rc"))
}

func TestOrders_AuthFailureStillIngests(t *testing.T) {
	auth := &refresher{err: errors.New("invalid_grant")}
	f := newFixture(t, AllFeatures(), auth)
	ctx := context.Background()

	f.watcher.RunOnce(ctx)
	assert.Equal(t, 1, auth.calls)

	orders, err := f.store.GetOrders(ctx, 10000002, 34, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestOrders_LoadsRegionsWithoutUniverseRefresh(t *testing.T) {
	f := newFixture(t, Features{Orders: true}, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SetRegions(ctx, []int64{10000002}))

	f.watcher.RunOnce(ctx)

	assert.Zero(t, f.mock.Requests("/universe/regions/"))
	orders, err := f.store.GetOrders(ctx, 10000002, 34, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, Features{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
