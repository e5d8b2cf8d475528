// Package validation checks statistics query parameters before any query runs.
//
// # Overview
//
// Every validator is a pure function returning a pass/fail flag and a
// human-readable message. Handlers run all relevant checks through Chain
// and report the first failure to the caller as a 400 response.
//
// # Rules
//
//   - days, days_ago: integer from AllowedDays (0, 7, 30, 90, 180, 365)
//   - count, page, paginate_by: non-negative integer
//   - sort_by_1..3: one of SortColumns, optionally prefixed with "-", pairwise distinct
//   - criteria: facet names from the aggregator's dispatch table
//
// # Usage Example
//
//	ok, msg := validation.Chain(
//		func() (bool, string) { return validation.ValidateStatsDays(days) },
//		func() (bool, string) { return validation.ValidateInt(count) },
//	)
//	if !ok {
//		httputil.WriteMessage(w, http.StatusBadRequest, msg)
//		return
//	}
package validation
