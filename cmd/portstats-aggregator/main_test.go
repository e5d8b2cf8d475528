package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portstats/pkg/app"
	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/stats"
)

func TestWarm(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = ":memory:"
	logger, hook := test.NewNullLogger()

	a, err := app.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, warm(context.Background(), a.Service, 30, time.Minute, logger))
	assert.Equal(t, "Cache warmed", hook.LastEntry().Message)

	q := stats.TopQuery{
		Days:       30,
		Count:      stats.DefaultTopCount,
		Page:       1,
		PaginateBy: stats.DefaultTopPaginateBy,
		SortBy:     stats.DefaultTopSort,
	}
	var page stats.TopPage
	ok, err := a.Cache.Get(context.Background(), stats.TopPortsCacheKey(q), &page)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, w := range warmWindows() {
		var general stats.GeneralStats
		ok, err = a.Cache.Get(context.Background(), stats.GeneralStatsCacheKey(w, true), &general)
		require.NoError(t, err)
		assert.True(t, ok, "window %d", w.Days)
	}
}

func TestWarmWindows(t *testing.T) {
	windows := warmWindows()

	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.Positive(t, w.Days)
		assert.Zero(t, w.DaysAgo)
	}
}

func TestWarm_Deadline(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLitePath = ":memory:"
	logger, _ := test.NewNullLogger()

	a, err := app.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, warm(ctx, a.Service, 30, time.Minute, logger))
}
