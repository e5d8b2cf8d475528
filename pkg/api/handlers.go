package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/portstats/pkg/httputil"
	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/stats"
	"github.com/platinummonkey/portstats/pkg/validation"
)

// submit handles POST /statistics/submit/
func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteMessage(w, http.StatusRequestEntityTooLarge, "Submission is too large.")
			return
		}
		httputil.WriteBadRequest(w, "Unable to parse the submission form.")
		return
	}

	data := r.PostForm.Get(SubmissionField)
	if strings.TrimSpace(data) == "" {
		httputil.WriteBadRequest(w, fmt.Sprintf("Missing form field '%s'.", SubmissionField))
		return
	}

	result, err := s.opts.Ingestor.Submit(r.Context(), []byte(data))
	if err != nil {
		if errors.Is(err, stats.ErrMalformedSubmission) {
			observability.FromContext(r.Context()).WithError(err).Debug("rejected submission")
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.writeError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// portStats handles GET /api/v1/ports/{name}/stats/
func (s *Server) portStats(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "name")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	window, criteria, ok := s.parseStatsQuery(w, r, defaultPortCriteria, nil, stats.PortFacets())
	if !ok {
		return
	}

	result, err := s.opts.Stats.PortStats(r.Context(), name, window, criteria)
	if err != nil {
		if errors.Is(err, stats.ErrPortNotFound) {
			httputil.WriteNotFound(w, fmt.Sprintf("The port %s does not exist.", name))
			return
		}
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// systemStats handles GET /api/v1/statistics/system/
func (s *Server) systemStats(w http.ResponseWriter, r *http.Request) {
	window, criteria, ok := s.parseStatsQuery(w, r, defaultSystemCriteria, systemAliases, stats.EcosystemFacets())
	if !ok {
		return
	}

	result, err := s.opts.Stats.EcosystemStats(r.Context(), window, criteria)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// generalStats handles GET /api/v1/statistics/general/
func (s *Server) generalStats(w http.ResponseWriter, r *http.Request) {
	days := httputil.QueryValue(r, "days", defaultDays)
	daysAgo := httputil.QueryValue(r, "days_ago", defaultDaysAgo)
	if ok, msg := validation.Chain(daysCheck(days), daysCheck(daysAgo)); !ok {
		httputil.WriteBadRequest(w, msg)
		return
	}

	result, err := s.opts.Stats.GeneralStats(r.Context(), windowOf(days, daysAgo), httputil.QueryFlag(r, "all_time"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// topPorts handles GET /api/v1/statistics/ports/top/
func (s *Server) topPorts(w http.ResponseWriter, r *http.Request) {
	days := httputil.QueryValue(r, "days", strconv.Itoa(stats.DefaultTopDays))
	count := httputil.QueryValue(r, "count", strconv.Itoa(stats.DefaultTopCount))
	pageNumber := httputil.QueryValue(r, "page", "1")
	paginateBy := httputil.QueryValue(r, "paginate_by", strconv.Itoa(stats.DefaultTopPaginateBy))
	columns := []string{
		httputil.QueryValue(r, "sort_by_1", stats.DefaultTopSort[0]),
		httputil.QueryValue(r, "sort_by_2", stats.DefaultTopSort[1]),
		httputil.QueryValue(r, "sort_by_3", stats.DefaultTopSort[2]),
	}

	ok, msg := validation.Chain(
		intCheck(count),
		intCheck(pageNumber),
		intCheck(paginateBy),
		daysCheck(days),
		func() (bool, string) { return validation.ValidateColumns(columns) },
		func() (bool, string) { return validation.ValidateUniqueColumns(columns) },
	)
	if !ok {
		httputil.WriteBadRequest(w, msg)
		return
	}

	q := stats.TopQuery{
		Days:       atoi(days),
		Count:      atoi(count),
		Page:       atoi(pageNumber),
		PaginateBy: atoi(paginateBy),
		SortBy:     [3]string{columns[0], columns[1], columns[2]},
	}

	page, err := s.opts.Stats.TopPorts(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

// parseStatsQuery validates days, days_ago and criteria. It writes the 400
// response itself and returns ok=false when any of them is invalid.
func (s *Server) parseStatsQuery(w http.ResponseWriter, r *http.Request, defaults []string, aliases map[string]string, allowed []string) (stats.Window, []stats.Facet, bool) {
	days := httputil.QueryValue(r, "days", defaultDays)
	daysAgo := httputil.QueryValue(r, "days_ago", defaultDaysAgo)

	names := defaults
	if raw := httputil.QueryValue(r, "criteria", ""); raw != "" {
		names = validation.SplitList(raw)
	}
	names = resolveAliases(names, aliases)

	ok, msg := validation.Chain(
		daysCheck(days),
		daysCheck(daysAgo),
		func() (bool, string) { return validation.ValidateFacets(names, allowed) },
	)
	if !ok {
		httputil.WriteBadRequest(w, msg)
		return stats.Window{}, nil, false
	}

	facets := make([]stats.Facet, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			facets = append(facets, stats.Facet(name))
		}
	}
	return windowOf(days, daysAgo), facets, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stats.ErrInvalidQuery):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		observability.FromContext(r.Context()).WithError(err).Warn("query deadline exceeded")
		httputil.WriteServiceUnavailable(w, "The query took too long. Try a shorter duration.")
	default:
		httputil.WriteInternalError(w, r, err)
	}
}

func resolveAliases(names []string, aliases map[string]string) []string {
	if len(aliases) == 0 {
		return names
	}
	out := make([]string, len(names))
	for i, name := range names {
		if canonical, ok := aliases[name]; ok {
			name = canonical
		}
		out[i] = name
	}
	return out
}

func daysCheck(value string) validation.Check {
	return func() (bool, string) { return validation.ValidateStatsDays(value) }
}

func intCheck(value string) validation.Check {
	return func() (bool, string) { return validation.ValidateInt(value) }
}

func windowOf(days, daysAgo string) stats.Window {
	return stats.Window{Days: atoi(days), DaysAgo: atoi(daysAgo)}
}

// atoi parses a value that has already been validated.
func atoi(value string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(value))
	return n
}
