// Package stats ingests anonymous usage reports and aggregates them into
// per-port and ecosystem-wide statistics.
//
// # Ingestion
//
// A report is a JSON object carrying the client identifier, an "os" environment
// block and the list of active ports:
//
//	ingestor := stats.NewIngestor(db, dialect, stats.Options{Metrics: metrics})
//	result, err := ingestor.Submit(ctx, body)
//	if errors.Is(err, stats.ErrMalformedSubmission) {
//	    // 400, nothing was stored
//	}
//
// Submit resolves the client identifier to an identity (creating it on first
// sight), records one submission at the server's clock and expands its active
// ports into installation rows in the same transaction. Port entries without a
// name are skipped and counted.
//
// # Aggregation
//
// Every windowed statistic is computed over representative submissions: for each
// identity, only its latest submission inside the window is used, so a machine
// that reports daily is counted once.
//
//	agg := stats.NewAggregator(db, dialect, stats.Options{})
//	port := "python312"
//	result, err := agg.GetStats(ctx, &port, stats.Window{Days: 30}, []stats.Facet{
//	    stats.FacetTotalCount, stats.FacetOSVersions,
//	})
//
// The monthly facets (installs_count_monthly, versions_count_monthly) cover all
// history and return the 12 most recent months regardless of the window.
package stats
