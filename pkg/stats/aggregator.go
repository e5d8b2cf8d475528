package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// Aggregator computes windowed statistics over recorded submissions. It only reads.
type Aggregator struct {
	db      storage.Querier
	dialect storage.Dialect
	opts    Options

	// replica, when set, picks the handle used for each read.
	replica func() storage.Querier
}

// NewAggregator creates an aggregator reading from db.
func NewAggregator(db storage.Querier, dialect storage.Dialect, opts Options) *Aggregator {
	return &Aggregator{db: db, dialect: dialect, opts: opts.withDefaults()}
}

// WithReplicas routes reads through pick, typically ConnectionManager.Replica.
func (a *Aggregator) WithReplicas(pick func() storage.Querier) *Aggregator {
	a.replica = pick
	return a
}

func (a *Aggregator) reader() storage.Querier {
	if a.replica != nil {
		if q := a.replica(); q != nil {
			return q
		}
	}
	return a.db
}

// Now returns the aggregator's notion of the current instant.
func (a *Aggregator) Now() time.Time {
	return a.opts.Clock.Now().UTC()
}

// GetStats evaluates facets for port, or for the whole ecosystem when port is nil.
// Facets are evaluated concurrently; the first failure cancels the rest.
func (a *Aggregator) GetStats(ctx context.Context, port *string, w Window, facets []Facet) (Result, error) {
	table, scope := ecosystemFacets, "ecosystem"
	q := facetQuery{}
	if port != nil {
		table, scope = portFacets, "port"
		q.Port = *port
	}

	handlers := make(map[Facet]facetFunc, len(facets))
	for _, f := range facets {
		fn, ok := table[f]
		if !ok {
			return nil, fmt.Errorf("%w: unknown %s facet %q", ErrInvalidQuery, scope, f)
		}
		handlers[f] = fn
	}

	q.Start, q.End = w.Bounds(a.Now())

	result := make(Result, len(handlers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for facet, fn := range handlers {
		facet, fn := facet, fn
		g.Go(func() error {
			started := time.Now()
			value, err := fn(gctx, a.reader(), a.dialect, q)
			a.opts.Metrics.ObserveAggregation(string(facet), scope, time.Since(started), err)
			if err != nil {
				return fmt.Errorf("failed to compute %s: %w", facet, err)
			}
			mu.Lock()
			result[facet] = value
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
