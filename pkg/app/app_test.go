package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/middleware"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/stats"
	"github.com/platinummonkey/portstats/pkg/storage"
)

func sqliteConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.SQLitePath = ":memory:"
	return cfg
}

func TestNew_SQLiteWithoutOptionalServices(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), sqliteConfig(), logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, storage.SQLite, a.Dialect)
	assert.Nil(t, a.Conns)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Archive)
	require.NotNil(t, a.Cache)
	assert.IsType(t, &middleware.RateLimiter{}, a.Limiter)

	_, err = a.Catalog.Load(context.Background(), strings.NewReader(`{"ports":[{"name":"curl","portdir":"net/curl","version":"8.6.0"}]}`))
	require.NoError(t, err)
	ok, err := a.Catalog.Exists(context.Background(), "curl")
	require.NoError(t, err)
	assert.True(t, ok)

	status := a.HealthChecker("test").Check(context.Background())
	assert.Equal(t, observability.StatusHealthy, status.Status)
	assert.NotContains(t, status.Dependencies, "redis")
	assert.NotContains(t, status.Dependencies, "ratelimit")
}

func TestNew_SharedCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig()
	cfg.Storage.RedisURL = "redis://" + mr.Addr()

	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	assert.IsType(t, &middleware.DistributedRateLimiter{}, a.Limiter)
	require.NoError(t, a.Cache.Set(context.Background(), "stats:general:7:0:false", 1, time.Minute))
	assert.True(t, mr.Exists("stats:general:7:0:false"))

	status := a.HealthChecker("test").Check(context.Background())
	assert.Contains(t, status.Dependencies, "redis")
	require.Contains(t, status.Dependencies, "ratelimit")
	assert.Equal(t, observability.StatusHealthy, status.Dependencies["ratelimit"].Status)

	mr.Close()
	status = a.HealthChecker("test").Check(context.Background())
	assert.Equal(t, observability.StatusDegraded, status.Status)
	assert.NotEqual(t, observability.StatusHealthy, status.Dependencies["ratelimit"].Status)
}

func TestNew_UnreachableRedisIsNotFatal(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Storage.RedisURL = "redis://127.0.0.1:1"

	logger, hook := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "redis unavailable, continuing without shared cache", hook.LastEntry().Message)
}

func TestNew_CacheDisabled(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Storage.CacheEnabled = false

	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	_, err = a.Service.GeneralStats(context.Background(), stats.Window{Days: 30}, false)
	assert.NoError(t, err)
}

func TestNew_BadDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = ""

	logger, _ := test.NewNullLogger()
	_, err := New(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestClose_Idempotent(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), sqliteConfig(), logger)
	require.NoError(t, err)

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestNew_RateLimitDisabled(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Server.SubmitRateLimit = 0

	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Limiter)
}

func TestNew_TrustedProxies(t *testing.T) {
	cfg := sqliteConfig()
	cfg.Server.TrustedProxies = "10.0.0.0/8,192.0.2.10"

	logger, _ := test.NewNullLogger()
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.TrustedProxies, 2)
	assert.True(t, a.TrustedProxies.Contains("10.20.30.40"))

	cfg.Server.TrustedProxies = "not-a-network"
	_, err = New(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "invalid trusted proxy")
}
