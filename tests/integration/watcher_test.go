//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/eve-marketwatch/internal/testutil"
	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/ratelimit"
	"github.com/Sternrassler/eve-marketwatch/pkg/search"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/watcher"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

func seedESI(mock *testutil.MockESI) {
	mock.SetJSON("/universe/regions/", []int64{10000002})
	mock.SetJSON("/universe/regions/10000002/", client.Region{RegionID: 10000002, Name: "The Forge", Constellations: []int64{20000020}})
	mock.SetJSON("/universe/constellations/20000020/", client.Constellation{ConstellationID: 20000020, Systems: []int64{30000142}})
	mock.SetJSON("/universe/systems/30000142/", client.System{SystemID: 30000142, Name: "Jita", SecurityStatus: 0.9459})
	mock.SetJSON("/markets/groups/", []int64{1857})
	mock.SetJSON("/markets/groups/1857/", client.MarketGroup{MarketGroupID: 1857, Name: "Minerals", Types: []int64{34}})
	mock.SetJSON("/universe/types/34/", client.ItemType{TypeID: 34, Name: "Tritanium", MarketGroupID: 1857})
	mock.SetJSON("/universe/stations/60003760/", client.Location{StationID: 60003760, Name: "Jita IV - Moon 4", SystemID: 30000142})

	orders := make([]client.Order, 0, 2)
	for i, price := range []float64{5.00, 5.01} {
		orders = append(orders, client.Order{
			OrderID:      int64(6000000001 + i),
			TypeID:       34,
			SystemID:     30000142,
			LocationID:   60003760,
			VolumeTotal:  1000,
			VolumeRemain: 500,
			Price:        price,
			Range:        "region",
			Issued:       time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC),
			Duration:     90,
		})
	}
	mock.SetPages("/markets/10000002/orders/", orders[:1], orders[1:])
}

// TestWatcherEndToEnd runs every job once against a real Redis and checks
// what a query layer would read back.
func TestWatcherEndToEnd(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	mock := testutil.NewMockESI()
	defer mock.Close()
	seedESI(mock)

	cfg := client.DefaultConfig("marketwatch-integration/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.Gate = ratelimit.NewGate(rdb, zerolog.Nop())
	esi, err := client.New(cfg)
	require.NoError(t, err)

	st := store.New(rdb)
	pool, err := worker.New(worker.Config{Size: 4, Client: esi, Store: st})
	require.NoError(t, err)
	pool.Start(ctx)
	defer pool.Close()

	index := search.New(zerolog.Nop())
	w, err := watcher.New(watcher.Config{
		Pool:       pool,
		Store:      st,
		Index:      index,
		Interval:   10 * time.Minute,
		Poll:       time.Second,
		StaticTime: 11*60 + 5,
		GroupTime:  11*60 + 5,
		Features:   watcher.AllFeatures(),
	})
	require.NoError(t, err)

	w.RunOnce(ctx)

	orders, err := st.GetOrders(ctx, 10000002, 34, 0)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, int64(10000002), o.RegionID)
		assert.Equal(t, int64(500), o.VolumeRemain)
		assert.LessOrEqual(t, o.Age, 5*time.Second)
	}

	all, err := st.GetOrdersAllRegions(ctx, 34)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ttl, err := rdb.TTL(ctx, "o:6000000001").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, store.OrderTTL-5*time.Second)

	station, err := st.GetLocationInfo(ctx, 60003760)
	require.NoError(t, err)
	require.NotNil(t, station)
	assert.InDelta(t, 0.9459, station.Security, 1e-9)

	hits := index.Query(search.System, "jita", 10000002, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "<b>Jita</b>", hits[0].Highlight)

	expiry, err := st.GetUniverseCacheExpiry(ctx)
	require.NoError(t, err)
	assert.True(t, expiry.Expires.After(expiry.Modified))

	state, err := cfg.Gate.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, state.Remain)
}

// TestSetRegions_Atomic checks that readers of a real Redis never see the
// list between its delete and repopulation.
func TestSetRegions_Atomic(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	st := store.New(rdb)

	regions := []int64{10000001, 10000002, 10000003, 10000004}
	require.NoError(t, st.SetRegions(ctx, regions))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			_ = st.SetRegions(ctx, regions)
		}
	}()

	empty := 0
	for ctx.Err() == nil {
		got, err := st.GetRegions(ctx)
		if err != nil {
			continue
		}
		if len(got) == 0 {
			empty++
		}
	}
	wg.Wait()
	assert.Zero(t, empty)
}
