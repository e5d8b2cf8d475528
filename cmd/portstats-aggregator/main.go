package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/app"
	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/stats"
	"github.com/platinummonkey/portstats/pkg/validation"
)

var (
	schedule = flag.String("schedule", "", "Cron schedule for cache warming (default: PORTSTATS_AGGREGATOR_SCHEDULE)")
	runOnce  = flag.Bool("run-once", false, "Warm the cache once and exit")
	timeout  = flag.Duration("timeout", 5*time.Minute, "Upper bound on one warming run")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), cfg.Observability.LogFormat, os.Stdout)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer a.Close()

	if a.Cache == nil {
		logger.Fatal("Caching is disabled; nothing to warm")
	}
	if a.Redis == nil {
		logger.Warn("No shared cache configured; warmed results stay in this process")
	}

	if *runOnce {
		if err := warm(context.Background(), a.Service, cfg.Aggregator.TopDays, *timeout, logger); err != nil {
			logger.WithError(err).Fatal("Cache warming failed")
		}
		return
	}

	spec := *schedule
	if spec == "" {
		spec = cfg.Aggregator.Schedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	_, err = c.AddFunc(spec, func() {
		if err := warm(context.Background(), a.Service, cfg.Aggregator.TopDays, *timeout, logger); err != nil {
			logger.WithError(err).Error("Cache warming failed")
		}
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", spec).Fatal("Invalid schedule")
	}

	c.Start()
	logger.WithField("schedule", spec).Info("portstats cache warmer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Cache warmer stopped")
}

// warm precomputes the default top-ports page for topDays and the general
// statistics for every non-empty window size.
func warm(ctx context.Context, svc *stats.Service, topDays int, timeout time.Duration, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	top := stats.TopQuery{
		Days:       topDays,
		Count:      stats.DefaultTopCount,
		Page:       1,
		PaginateBy: stats.DefaultTopPaginateBy,
		SortBy:     stats.DefaultTopSort,
	}

	windows := warmWindows()
	if err := svc.Warm(ctx, top, windows...); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"duration": time.Since(started),
		"windows":  len(windows),
	}).Info("Cache warmed")
	return nil
}

// warmWindows lists every non-empty window a client may ask for.
func warmWindows() []stats.Window {
	var windows []stats.Window
	for _, days := range validation.AllowedDays {
		if days > 0 {
			windows = append(windows, stats.Window{Days: days})
		}
	}
	return windows
}
