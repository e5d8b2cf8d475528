package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/storage"
)

// Port is the slice of a catalog entry the statistics service needs.
type Port struct {
	Name        string    `json:"name"`
	Portdir     string    `json:"portdir"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Options configures a Store.
type Options struct {
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    logrus.FieldLogger
	CacheSize int
	CacheTTL  time.Duration
}

// Store reads and writes the ports table. Existence checks are cached for
// CacheTTL; a Load purges the cache.
type Store struct {
	db     *sql.DB
	opts   Options
	exists *lru.LRU[string, bool]
}

// NewStore creates a catalog store.
func NewStore(db *sql.DB, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &Store{
		db:     db,
		opts:   opts,
		exists: lru.NewLRU[string, bool](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Exists reports whether a port with name exists, ignoring case.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return false, nil
	}
	if found, ok := s.exists.Get(key); ok {
		return found, nil
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM ports WHERE LOWER(name) = $1 LIMIT 1`, key).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.exists.Add(key, false)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up port %s: %w", name, err)
	}
	s.exists.Add(key, true)
	return true, nil
}

// Count returns the number of ports in the catalog.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ports: %w", err)
	}
	return n, nil
}

const upsertPort = `
	INSERT INTO ports (name, portdir, version, description, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (name) DO UPDATE SET
		portdir = excluded.portdir,
		version = excluded.version,
		description = excluded.description,
		updated_at = excluded.updated_at`

// Upsert inserts p or updates the existing row with the same name.
func (s *Store) Upsert(ctx context.Context, q storage.Querier, p Port) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("port name is required")
	}
	at := p.UpdatedAt
	if at.IsZero() {
		at = s.opts.Clock.Now()
	}
	if _, err := q.ExecContext(ctx, upsertPort,
		p.Name, p.Portdir, p.Version, p.Description, at.UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert port %s: %w", p.Name, err)
	}
	return nil
}

// LoadResult summarises a catalog load.
type LoadResult struct {
	Loaded  int    `json:"loaded"`
	Skipped int    `json:"skipped"`
	Commit  string `json:"commit,omitempty"`
	Total   int64  `json:"total"`
}

type portindex struct {
	Info struct {
		Commit string `json:"commit"`
	} `json:"info"`
	Ports []json.RawMessage `json:"ports"`
}

type portindexEntry struct {
	Name        *string `json:"name"`
	Portdir     *string `json:"portdir"`
	Version     *string `json:"version"`
	Description string  `json:"description"`
}

// Load reads a portindex JSON document and upserts every port in a single
// transaction. Entries missing a name, portdir or version are skipped.
func (s *Store) Load(ctx context.Context, r io.Reader) (*LoadResult, error) {
	var index portindex
	if err := json.NewDecoder(r).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode portindex: %w", err)
	}
	if index.Ports == nil {
		return nil, fmt.Errorf("portindex has no ports list")
	}

	result := &LoadResult{Commit: index.Info.Commit}
	now := s.opts.Clock.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, raw := range index.Ports {
		var entry portindexEntry
		if err := json.Unmarshal(raw, &entry); err != nil ||
			entry.Name == nil || entry.Portdir == nil || entry.Version == nil ||
			strings.TrimSpace(*entry.Name) == "" {
			result.Skipped++
			continue
		}
		if err := s.Upsert(ctx, tx, Port{
			Name:        strings.TrimSpace(*entry.Name),
			Portdir:     *entry.Portdir,
			Version:     *entry.Version,
			Description: entry.Description,
			UpdatedAt:   now,
		}); err != nil {
			return nil, err
		}
		result.Loaded++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit portindex: %w", err)
	}
	s.exists.Purge()

	total, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	result.Total = total
	if s.opts.Metrics != nil {
		s.opts.Metrics.CatalogPortsTotal.Set(float64(total))
	}

	s.opts.Logger.WithFields(logrus.Fields{
		"loaded":  result.Loaded,
		"skipped": result.Skipped,
		"commit":  result.Commit,
		"total":   total,
	}).Info("loaded port catalog")
	return result, nil
}

// LoadFile loads the portindex at path.
func (s *Store) LoadFile(ctx context.Context, path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open portindex: %w", err)
	}
	defer f.Close()
	return s.Load(ctx, f)
}
