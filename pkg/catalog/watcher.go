package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the catalog whenever its portindex file changes.
type Watcher struct {
	store  *Store
	path   string
	delay  time.Duration
	logger logrus.FieldLogger

	// OnLoad, when set, is called after every reload attempt.
	OnLoad func(*LoadResult, error)
}

// NewWatcher creates a watcher for path. Bursts of events within delay
// collapse into a single reload.
func NewWatcher(store *Store, path string, delay time.Duration, logger logrus.FieldLogger) *Watcher {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{store: store, path: filepath.Clean(path), delay: delay, logger: logger}
}

// Run watches until ctx is done. The parent directory is watched so that a
// portindex replaced by rename is still picked up.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.WithField("path", w.path).Info("watching port catalog")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(w.delay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("catalog watcher error")
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	result, err := w.store.LoadFile(ctx, w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Error("failed to reload port catalog")
	}
	if w.OnLoad != nil {
		w.OnLoad(result, err)
	}
}
