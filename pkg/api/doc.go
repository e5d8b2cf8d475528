// Package api exposes the portstats HTTP interface.
//
// Routes:
//
//	POST /statistics/submit/              form field submission[data] holds the JSON report
//	GET  /api/v1/ports/{name}/stats/      days, days_ago, criteria
//	GET  /api/v1/statistics/general/      days, days_ago, all_time
//	GET  /api/v1/statistics/system/       days, days_ago, criteria
//	GET  /api/v1/statistics/ports/top/    days, count, page, paginate_by, sort_by_1..3
//	GET  /healthz, /readyz, /metrics
//
// Every query parameter is validated before any statistics query runs.
// Failures are reported as {"message": "...", "status_code": N}:
// 400 for invalid parameters or malformed submissions, 404 for unknown
// ports, 405 for unsupported methods, 413 for oversized submissions, 429 when
// a client exceeds the submission rate limit, 503 when a query exceeds the
// request deadline and 500 for anything else.
//
// Usage:
//
//	server := api.NewServer(api.Options{
//		Stats:        service,
//		Ingestor:     ingestor,
//		Health:       health,
//		QueryTimeout: 30 * time.Second,
//	})
//	http.ListenAndServe(":8080", server)
package api
