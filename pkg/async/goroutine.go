package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	loggerMu sync.RWMutex
	logger   logrus.FieldLogger = logrus.StandardLogger()
)

// SetLogger replaces the logger used for background task failures.
func SetLogger(l logrus.FieldLogger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func log() logrus.FieldLogger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SafeGo executes fn in a goroutine bounded by timeout, or by parentCtx alone
// when timeout is zero. Panics and errors are logged and never reach the caller.
//
// Example:
//
//	SafeGo(context.WithoutCancel(r.Context()), 30*time.Second, "submission archive", func(ctx context.Context) error {
//	    return archive.PutObject(ctx, key, bytes.NewReader(raw), "application/json")
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		if err := run(parentCtx, timeout, taskName, fn); err != nil {
			log().WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// run executes fn with a timeout and converts a panic into an error.
func run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log().WithField("task", taskName).Errorf("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("%s: panic: %v", taskName, r)
		}
	}()

	return fn(ctx)
}

// Batch applies fn to every item with at most workers running at once and
// returns the errors collected. Items not yet started when ctx is cancelled
// are skipped and reported as a single error.
//
// Example:
//
//	errs := Batch(ctx, keys, 8, "archive replay", time.Minute, func(ctx context.Context, key string) error {
//	    return replay(ctx, key)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	sem := make(chan struct{}, workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			record(fmt.Errorf("%s: %d items not started: %w", taskName, len(items)-i, err))
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			record(fmt.Errorf("%s: %d items not started: %w", taskName, len(items)-i, ctx.Err()))
			wg.Wait()
			return errs
		}

		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := run(ctx, timeout, taskName, func(ctx context.Context) error {
				return fn(ctx, item)
			}); err != nil {
				record(err)
			}
		}(item)
	}

	wg.Wait()
	return errs
}
