package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/app"
	"github.com/platinummonkey/portstats/pkg/async"
	"github.com/platinummonkey/portstats/pkg/config"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/stats"
	"github.com/platinummonkey/portstats/pkg/storage/postgres"
)

var (
	portindex   = flag.String("portindex", "", "Load the port catalog from this portindex JSON file")
	submissions = flag.String("submissions", "", "Replay a JSON array of raw submissions from this file")
	fromArchive = flag.Bool("from-archive", false, "Replay every submission stored under the archive prefix")
	prefix      = flag.String("prefix", "", "Archive key prefix to replay (default: PORTSTATS_S3_PREFIX)")
	workers     = flag.Int("workers", 4, "Concurrent archive downloads")
)

type submitter interface {
	Submit(ctx context.Context, raw []byte) (*stats.IngestResult, error)
}

type objectSource interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

type invalidator interface {
	Invalidate(ctx context.Context, patterns ...string) error
}

// replayStats counts the outcome of a replay. Missing counts archive objects
// deleted between listing and download.
type replayStats struct {
	Accepted  int64
	Malformed int64
	Missing   int64
	Failed    int64
}

func (s *replayStats) record(err error) error {
	switch {
	case err == nil:
		atomic.AddInt64(&s.Accepted, 1)
		return nil
	case errors.Is(err, stats.ErrMalformedSubmission):
		atomic.AddInt64(&s.Malformed, 1)
		return nil
	case errors.Is(err, postgres.ErrObjectNotFound):
		atomic.AddInt64(&s.Missing, 1)
		return nil
	default:
		atomic.AddInt64(&s.Failed, 1)
		return err
	}
}

func (s *replayStats) fields() logrus.Fields {
	return logrus.Fields{"accepted": s.Accepted, "malformed": s.Malformed, "missing": s.Missing, "failed": s.Failed}
}

func main() {
	flag.Parse()
	if *portindex == "" && *submissions == "" && !*fromArchive {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), cfg.Observability.LogFormat, os.Stdout)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer a.Close()

	if *portindex != "" {
		result, err := a.Catalog.LoadFile(ctx, *portindex)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load port catalog")
		}
		logger.WithFields(logrus.Fields{"loaded": result.Loaded, "skipped": result.Skipped}).Info("Port catalog loaded")
	}

	if *submissions != "" {
		f, err := os.Open(*submissions)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open submissions file")
		}
		counts, err := importFile(ctx, a.Ingestor, f, logger)
		f.Close()
		if err != nil {
			logger.WithError(err).WithFields(counts.fields()).Fatal("Submission import failed")
		}
		logger.WithFields(counts.fields()).Info("Submissions imported")
		if a.Cache != nil {
			invalidateResults(ctx, a.Cache, counts, logger)
		}
	}

	if *fromArchive {
		if a.Archive == nil {
			logger.Fatal("No archive bucket configured (PORTSTATS_S3_BUCKET)")
		}
		keyPrefix := *prefix
		if keyPrefix == "" {
			keyPrefix = cfg.Storage.S3Prefix
		}
		// Replayed payloads are already archived.
		ingestor := stats.NewIngestor(a.DB, a.Dialect, stats.Options{Metrics: a.Metrics, Logger: logger})
		counts, err := replayArchive(ctx, ingestor, a.Archive, keyPrefix, *workers, logger)
		if err != nil {
			logger.WithError(err).WithFields(counts.fields()).Fatal("Archive replay failed")
		}
		logger.WithFields(counts.fields()).Info("Archive replayed")
		if a.Cache != nil {
			invalidateResults(ctx, a.Cache, counts, logger)
		}
	}
}

// invalidateResults drops cached statistics once replayed submissions have
// changed them. Failures are logged; entries still expire on their TTL.
func invalidateResults(ctx context.Context, cache invalidator, counts *replayStats, logger logrus.FieldLogger) {
	if counts.Accepted == 0 {
		return
	}
	if err := cache.Invalidate(ctx, stats.CacheKeyPattern); err != nil {
		logger.WithError(err).Warn("Failed to invalidate cached statistics")
		return
	}
	logger.Info("Cached statistics invalidated")
}

// importFile submits every element of a JSON array, in order. Malformed
// reports are counted and skipped; the first storage failure stops the import.
func importFile(ctx context.Context, sub submitter, r io.Reader, logger logrus.FieldLogger) (*replayStats, error) {
	var reports []json.RawMessage
	if err := json.NewDecoder(r).Decode(&reports); err != nil {
		return &replayStats{}, fmt.Errorf("submissions file must be a JSON array: %w", err)
	}

	counts := &replayStats{}
	for i, raw := range reports {
		_, err := sub.Submit(ctx, raw)
		if err := counts.record(err); err != nil {
			return counts, fmt.Errorf("submission %d: %w", i, err)
		}
		if err != nil {
			logger.WithError(err).WithField("index", i).Debug("skipped malformed submission")
		}
	}
	return counts, nil
}

// replayArchive downloads and submits every object under prefix.
func replayArchive(ctx context.Context, sub submitter, src objectSource, prefix string, workers int, logger logrus.FieldLogger) (*replayStats, error) {
	keys, err := src.ListKeys(ctx, prefix)
	if err != nil {
		return &replayStats{}, err
	}
	logger.WithFields(logrus.Fields{"prefix": prefix, "objects": len(keys)}).Info("Replaying archive")

	counts := &replayStats{}
	errs := async.Batch(ctx, keys, workers, "archive replay", time.Minute, func(ctx context.Context, key string) error {
		body, err := src.GetObject(ctx, key)
		if err != nil {
			if err := counts.record(err); err != nil {
				return err
			}
			logger.WithField("key", key).Debug("archive object vanished before download")
			return nil
		}
		defer body.Close()
		raw, err := io.ReadAll(body)
		if err != nil {
			counts.record(err)
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		_, err = sub.Submit(ctx, raw)
		if err := counts.record(err); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	})
	for _, err := range errs {
		logger.WithError(err).Warn("replay failure")
	}
	if len(errs) > 0 {
		return counts, fmt.Errorf("%d of %d objects failed", len(errs), len(keys))
	}
	return counts, nil
}
