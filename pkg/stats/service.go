package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/portstats/pkg/observability"
)

// PortCatalog answers whether a port exists.
type PortCatalog interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// ResultCache stores JSON-serialisable query results.
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CacheTTLs holds the lifetime of each cached result kind. Zero disables caching
// for that kind.
type CacheTTLs struct {
	PortStats      time.Duration
	EcosystemStats time.Duration
	GeneralStats   time.Duration
	TopPorts       time.Duration
}

// Service is the read API used by the HTTP layer: catalog checks, caching and
// aggregation.
type Service struct {
	aggregator *Aggregator
	catalog    PortCatalog
	cache      ResultCache
	ttls       CacheTTLs
}

// NewService creates a Service. catalog and cache may be nil.
func NewService(aggregator *Aggregator, catalog PortCatalog, cache ResultCache, ttls CacheTTLs) *Service {
	return &Service{aggregator: aggregator, catalog: catalog, cache: cache, ttls: ttls}
}

// PortStats returns facets for one port. Unknown ports fail with ErrPortNotFound,
// distinct from a known port with no activity.
func (s *Service) PortStats(ctx context.Context, name string, w Window, facets []Facet) (Result, error) {
	if s.catalog != nil {
		ok, err := s.catalog.Exists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to look up port: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPortNotFound, name)
		}
	}

	key := fmt.Sprintf("stats:port:%s:%d:%d:%s", strings.ToLower(name), w.Days, w.DaysAgo, facetKey(facets))
	var out map[Facet]json.RawMessage
	return cachedResult(ctx, s, key, s.ttls.PortStats, &out, func() (Result, error) {
		return s.aggregator.GetStats(ctx, &name, w, facets)
	})
}

// EcosystemStats returns facets computed across all ports.
func (s *Service) EcosystemStats(ctx context.Context, w Window, facets []Facet) (Result, error) {
	key := fmt.Sprintf("stats:system:%d:%d:%s", w.Days, w.DaysAgo, facetKey(facets))
	var out map[Facet]json.RawMessage
	return cachedResult(ctx, s, key, s.ttls.EcosystemStats, &out, func() (Result, error) {
		return s.aggregator.GetStats(ctx, nil, w, facets)
	})
}

// GeneralStats returns submission and user totals.
func (s *Service) GeneralStats(ctx context.Context, w Window, allTime bool) (*GeneralStats, error) {
	key := GeneralStatsCacheKey(w, allTime)
	if out, ok := s.lookup(ctx, key, &GeneralStats{}); ok {
		return out.(*GeneralStats), nil
	}
	out, err := s.aggregator.GetGeneralStats(ctx, w, allTime)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out, s.ttls.GeneralStats)
	return out, nil
}

// TopPorts returns one page of the top-packages ranking.
func (s *Service) TopPorts(ctx context.Context, q TopQuery) (*TopPage, error) {
	key := TopPortsCacheKey(q)
	if out, ok := s.lookup(ctx, key, &TopPage{}); ok {
		return out.(*TopPage), nil
	}
	out, err := s.aggregator.GetTopPackages(ctx, q)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out, s.ttls.TopPorts)
	return out, nil
}

// CacheKeyPattern matches every key the service caches under.
const CacheKeyPattern = "stats:*"

// TopPortsCacheKey is the cache key of a top-packages page.
func TopPortsCacheKey(q TopQuery) string {
	return fmt.Sprintf("stats:top:%d:%d:%d:%d:%s", q.Days, q.Count, q.Page, q.PaginateBy, strings.Join(q.SortBy[:], ","))
}

// GeneralStatsCacheKey is the cache key of a general statistics result.
func GeneralStatsCacheKey(w Window, allTime bool) string {
	return fmt.Sprintf("stats:general:%d:%d:%t", w.Days, w.DaysAgo, allTime)
}

// Warm recomputes the top-packages page q once and the general statistics for
// each of windows, and stores them in the cache.
func (s *Service) Warm(ctx context.Context, q TopQuery, windows ...Window) error {
	top, err := s.aggregator.GetTopPackages(ctx, q)
	if err != nil {
		return err
	}
	s.store(ctx, TopPortsCacheKey(q), top, s.ttls.TopPorts)

	for _, w := range windows {
		for _, allTime := range []bool{false, true} {
			general, err := s.aggregator.GetGeneralStats(ctx, w, allTime)
			if err != nil {
				return err
			}
			s.store(ctx, GeneralStatsCacheKey(w, allTime), general, s.ttls.GeneralStats)
		}
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, key string, dest interface{}) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	ok, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		observability.FromContext(ctx).WithError(err).WithField("key", key).Warn("stats cache read failed")
		return nil, false
	}
	return dest, ok
}

func (s *Service) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cache == nil || ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("key", key).Warn("stats cache write failed")
	}
}

// cachedResult serves a facet Result from cache when present. Cached facet values
// come back as raw JSON, which encodes identically to the computed values.
func cachedResult(ctx context.Context, s *Service, key string, ttl time.Duration, raw *map[Facet]json.RawMessage, compute func() (Result, error)) (Result, error) {
	if ttl > 0 {
		if _, ok := s.lookup(ctx, key, raw); ok {
			out := make(Result, len(*raw))
			for f, v := range *raw {
				out[f] = v
			}
			return out, nil
		}
	}
	out, err := compute()
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, out, ttl)
	return out, nil
}

func facetKey(facets []Facet) string {
	names := make([]string, 0, len(facets))
	for _, f := range facets {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
