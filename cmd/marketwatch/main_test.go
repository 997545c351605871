package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/eve-marketwatch/internal/testutil"
	"github.com/Sternrassler/eve-marketwatch/pkg/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "marketwatch dev"))
}

func TestNewRedisClient(t *testing.T) {
	tcp := newRedisClient(config.RedisConfig{Addr: "redis:6379", DB: 2})
	defer tcp.Close()
	assert.Equal(t, "tcp", tcp.Options().Network)
	assert.Equal(t, "redis:6379", tcp.Options().Addr)
	assert.Equal(t, 2, tcp.Options().DB)

	unix := newRedisClient(config.RedisConfig{Addr: "redis:6379", Socket: "/var/run/redis.sock"})
	defer unix.Close()
	assert.Equal(t, "unix", unix.Options().Network)
	assert.Equal(t, "/var/run/redis.sock", unix.Options().Addr)
}

func TestRunWatch_InvalidConfig(t *testing.T) {
	t.Setenv("MARKETWATCH_ESI_USER_AGENT", "")
	err := runWatch(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "esi.user_agent")
}

func TestRunWatch_StopsOnCancel(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	mock.SetJSON("/universe/regions/", []int64{})
	mock.SetJSON("/markets/groups/", []int64{})

	mr := miniredis.RunT(t)

	t.Setenv("MARKETWATCH_ESI_USER_AGENT", "marketwatch-test/1.0")
	t.Setenv("MARKETWATCH_ESI_BASE_URL", mock.URL())
	t.Setenv("MARKETWATCH_REDIS_ADDR", mr.Addr())
	t.Setenv("MARKETWATCH_POOL_SIZE", "1")
	t.Setenv("MARKETWATCH_FETCH_POLL", "50ms")
	t.Setenv("MARKETWATCH_METRICS_ADDR", "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := runWatch(ctx, "", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 1, mock.Requests("/universe/regions/"))
	assert.Equal(t, 1, mock.Requests("/markets/groups/"))
	assert.True(t, mr.Exists("rc"))
}
