package tasks

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/Sternrassler/eve-marketwatch/internal/testutil"
	"github.com/Sternrassler/eve-marketwatch/pkg/client"
	"github.com/Sternrassler/eve-marketwatch/pkg/stats"
	"github.com/Sternrassler/eve-marketwatch/pkg/store"
	"github.com/Sternrassler/eve-marketwatch/pkg/worker"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	mock  *testutil.MockESI
	mr    *miniredis.Miniredis
	store *store.Store
	pool  *worker.Pool
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mock := testutil.NewMockESI()
	t.Cleanup(mock.Close)

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

	return &env{mock: mock, mr: mr, store: st, pool: pool}
}

func (e *env) run(t worker.Task) *stats.Stats {
	e.pool.Enqueue(t)
	return e.pool.Wait()
}

func TestUpdateRegions_FansOutToSystems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mock.SetJSON("/universe/regions/", []int64{10000002})
	e.mock.SetJSON("/universe/regions/10000002/", client.Region{RegionID: 10000002, Name: "The Forge", Constellations: []int64{20000020}})
	e.mock.SetJSON("/universe/constellations/20000020/", client.Constellation{ConstellationID: 20000020, Systems: []int64{30000142, 30000144}})
	e.mock.SetJSON("/universe/systems/30000142/", client.System{SystemID: 30000142, Name: "Jita", SecurityStatus: 0.9459})
	e.mock.SetJSON("/universe/systems/30000144/", client.System{SystemID: 30000144, Name: "Perimeter", SecurityStatus: 0.9518})

	total := e.run(UpdateRegions{Global: client.NewGlobalAPI()})
	assert.Equal(t, 5, total.Get(stats.Request).Total)
	assert.Zero(t, total.Get(stats.Request).Failure)
	assert.Positive(t, total.Get(stats.Update).Total)

	regions, err := e.store.GetRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10000002}, regions)

	info, err := e.store.GetRegionInfo(ctx, 10000002)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "The Forge", info.Name)

	systems, err := e.store.GetSystems(ctx, 10000002)
	require.NoError(t, err)
	assert.Equal(t, []int64{30000142, 30000144}, systems)

	jita, err := e.store.GetSystemInfo(ctx, 30000142)
	require.NoError(t, err)
	require.NotNil(t, jita)
	assert.Equal(t, "Jita", jita.Name)
}

func TestUpdateRegionInfo_ChunksAndSkipsFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ids := make([]int64, 0, 10)
	for i := int64(1); i <= 10; i++ {
		ids = append(ids, 10000000+i)
		if i != 5 {
			e.mock.SetJSON("/universe/regions/"+itoa(10000000+i)+"/", client.Region{RegionID: 10000000 + i, Name: "R" + itoa(i)})
		}
	}
	e.mock.SetJSON("/universe/regions/", ids)

	e.run(UpdateRegions{Global: client.NewGlobalAPI()})

	for _, id := range ids {
		info, err := e.store.GetRegionInfo(ctx, id)
		require.NoError(t, err)
		if id == 10000005 {
			assert.Nil(t, info)
			continue
		}
		assert.NotNil(t, info, "region %d", id)
	}
}

func TestUpdateRegionSystems_KeepsListOnFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.store.SetRegionSystems(ctx, 10000002, []int64{30000142}))
	e.mock.SetJSON("/universe/constellations/20000020/", client.Constellation{Systems: []int64{30000142, 30000144}})

	e.run(UpdateRegionSystems{
		Global:           client.NewGlobalAPI(),
		RegionID:         10000002,
		ConstellationIDs: []int64{20000020, 20000021},
	})

	systems, err := e.store.GetSystems(ctx, 10000002)
	require.NoError(t, err)
	assert.Equal(t, []int64{30000142}, systems)
}

func TestUpdateGroups_FansOutToTypes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.mock.SetJSON("/markets/groups/", []int64{1857, 18})
	e.mock.SetJSON("/markets/groups/1857/", client.MarketGroup{MarketGroupID: 1857, Name: "Minerals", ParentGroupID: 54, Types: []int64{34, 35}})
	e.mock.SetJSON("/markets/groups/18/", client.MarketGroup{MarketGroupID: 18, Name: "Ore", Types: []int64{35, 1230}})
	e.mock.SetJSON("/universe/types/34/", client.ItemType{TypeID: 34, Name: "Tritanium", MarketGroupID: 1857})
	e.mock.SetJSON("/universe/types/35/", client.ItemType{TypeID: 35, Name: "Pyerite", MarketGroupID: 1857})
	e.mock.SetJSON("/universe/types/1230/", client.ItemType{TypeID: 1230, Name: "Veldspar", MarketGroupID: 18})

	e.run(UpdateGroups{Global: client.NewGlobalAPI()})

	group, err := e.store.GetGroupInfo(ctx, 1857)
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, "Minerals", group.Name)
	assert.True(t, group.HasTypes)

	groupTypes, err := e.store.GetGroupTypes(ctx, 18)
	require.NoError(t, err)
	assert.Equal(t, []int64{35, 1230}, groupTypes)

	trit, err := e.store.GetTypeInfo(ctx, 34)
	require.NoError(t, err)
	require.NotNil(t, trit)
	assert.Equal(t, "Tritanium", trit.Name)

	typeIDs, err := RebuildTypeList(ctx, e.store)
	require.NoError(t, err)
	assert.Equal(t, []int64{34, 35, 1230}, typeIDs)

	stored, err := e.store.GetTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, typeIDs, stored)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
