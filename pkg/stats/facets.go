package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/portstats/pkg/storage"
)

// Facet names one independently requestable aggregation.
type Facet string

const (
	FacetTotalCount       Facet = "total_count"
	FacetReqCount         Facet = "req_count"
	FacetPortVersions     Facet = "port_versions"
	FacetOSVersions       Facet = "os_versions"
	FacetXcodeVersions    Facet = "xcode_versions"
	FacetVariants         Facet = "variants"
	FacetInstallsMonthly  Facet = "installs_count_monthly"
	FacetVersionsMonthly  Facet = "versions_count_monthly"
	FacetMacPortsVersions Facet = "macports_versions"
)

// monthlyLimit caps the number of groups returned by the monthly facets.
const monthlyLimit = 12

// Result maps each requested facet to its value. Facets that were not requested
// are absent.
type Result map[Facet]interface{}

// VersionCount is the number of installations of one port version.
type VersionCount struct {
	Version string `json:"version"`
	Num     int64  `json:"num"`
}

// OSCount counts installations per macOS version, architecture and C++
// standard library.
type OSCount struct {
	OSVersion string `json:"os_version"`
	BuildArch string `json:"build_arch"`
	CXXStdlib string `json:"cxx_stdlib"`
	Num       int64  `json:"num"`
}

// XcodeCount counts installations per Xcode and macOS version pair.
type XcodeCount struct {
	XcodeVersion string `json:"xcode_version"`
	OSVersion    string `json:"os_version"`
	Num          int64  `json:"num"`
}

// VariantCount counts installations built with one variant string, such as
// "+ssl +http2".
type VariantCount struct {
	Variants string `json:"variants"`
	Num      int64  `json:"num"`
}

// MacPortsCount counts installations per MacPorts release.
type MacPortsCount struct {
	MacPortsVersion string `json:"macports_version"`
	Num             int64  `json:"num"`
}

// MonthCount is a monthly installation total. Month is "YYYY-MM".
type MonthCount struct {
	Month string `json:"month"`
	Num   int64  `json:"num"`
}

// MonthVersionCount is a monthly installation total for one port version.
type MonthVersionCount struct {
	Month   string `json:"month"`
	Version string `json:"version"`
	Num     int64  `json:"num"`
}

type facetQuery struct {
	Start, End time.Time
	Port       string
}

type facetFunc func(ctx context.Context, db storage.Querier, dialect storage.Dialect, q facetQuery) (interface{}, error)

// portFacets are evaluated for a single port, ecosystemFacets over the
// ecosystem as a whole.
var (
	portFacets = map[Facet]facetFunc{
		FacetTotalCount:      portTotalCount,
		FacetReqCount:        portReqCount,
		FacetPortVersions:    portVersions,
		FacetOSVersions:      portOSVersions,
		FacetXcodeVersions:   portXcodeVersions,
		FacetVariants:        portVariants,
		FacetInstallsMonthly: portInstallsMonthly,
		FacetVersionsMonthly: portVersionsMonthly,
	}

	ecosystemFacets = map[Facet]facetFunc{
		FacetTotalCount:       ecosystemTotalCount,
		FacetOSVersions:       ecosystemOSVersions,
		FacetXcodeVersions:    ecosystemXcodeVersions,
		FacetMacPortsVersions: ecosystemMacPortsVersions,
		FacetInstallsMonthly:  ecosystemInstallsMonthly,
	}
)

// PortFacets returns the facet names accepted for a single port, sorted.
func PortFacets() []string { return facetNames(portFacets) }

// EcosystemFacets returns the facet names accepted without a port filter, sorted.
func EcosystemFacets() []string { return facetNames(ecosystemFacets) }

func facetNames(m map[Facet]facetFunc) []string {
	names := make([]string, 0, len(m))
	for f := range m {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// portQuery builds a query over the installations of the port $3 that belong to
// representative submissions in [$1, $2).
func portQuery(columns, tail string) string {
	return representativeCTE + `
	SELECT ` + columns + `
	FROM installations i
	JOIN representative r ON r.id = i.submission_id
	WHERE LOWER(i.port) = LOWER($3)
	` + tail
}

func windowArgs(q facetQuery) []interface{} {
	return []interface{}{q.Start, q.End, q.Port}
}

func scanCount(ctx context.Context, db storage.Querier, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// queryRows runs query and calls scan once per row.
func queryRows(ctx context.Context, db storage.Querier, query string, args []interface{}, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func portTotalCount(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	return scanCount(ctx, db, portQuery("COUNT(DISTINCT i.submission_id)", ""), windowArgs(q)...)
}

func portReqCount(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	return scanCount(ctx, db, portQuery("COUNT(DISTINCT i.submission_id)", "AND i.requested"), windowArgs(q)...)
}

func portVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := portQuery("i.version, COUNT(DISTINCT i.submission_id) AS num",
		"GROUP BY i.version ORDER BY num DESC, i.version")
	out := []VersionCount{}
	err := queryRows(ctx, db, query, windowArgs(q), func(rows *sql.Rows) error {
		var v VersionCount
		if err := rows.Scan(&v.Version, &v.Num); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func portOSVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := portQuery("i.os_version, i.build_arch, i.cxx_stdlib, COUNT(DISTINCT i.submission_id)",
		"GROUP BY i.os_version, i.build_arch, i.cxx_stdlib")
	return scanOSCounts(ctx, db, query, windowArgs(q))
}

func portXcodeVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := portQuery("i.xcode_version, i.os_version, COUNT(DISTINCT i.submission_id)",
		"GROUP BY i.xcode_version, i.os_version")
	return scanXcodeCounts(ctx, db, query, windowArgs(q))
}

func portVariants(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := portQuery("i.variants, COUNT(DISTINCT i.submission_id) AS num",
		"GROUP BY i.variants ORDER BY num DESC, i.variants")
	out := []VariantCount{}
	err := queryRows(ctx, db, query, windowArgs(q), func(rows *sql.Rows) error {
		var v VariantCount
		if err := rows.Scan(&v.Variants, &v.Num); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// The monthly facets span all history; the window is ignored.
func portInstallsMonthly(ctx context.Context, db storage.Querier, dialect storage.Dialect, q facetQuery) (interface{}, error) {
	query := fmt.Sprintf(`
		SELECT %s AS month, COUNT(DISTINCT s.user_id)
		FROM installations i
		JOIN submissions s ON s.id = i.submission_id
		WHERE LOWER(i.port) = LOWER($1)
		GROUP BY 1
		ORDER BY 1 DESC
		LIMIT %d`, dialect.MonthOf("s.timestamp"), monthlyLimit)
	return scanMonthCounts(ctx, db, query, []interface{}{q.Port})
}

func portVersionsMonthly(ctx context.Context, db storage.Querier, dialect storage.Dialect, q facetQuery) (interface{}, error) {
	query := fmt.Sprintf(`
		SELECT %s AS month, i.version, COUNT(DISTINCT s.user_id)
		FROM installations i
		JOIN submissions s ON s.id = i.submission_id
		WHERE LOWER(i.port) = LOWER($1)
		GROUP BY 1, 2
		ORDER BY 1 DESC, 2
		LIMIT %d`, dialect.MonthOf("s.timestamp"), monthlyLimit)
	out := []MonthVersionCount{}
	err := queryRows(ctx, db, query, []interface{}{q.Port}, func(rows *sql.Rows) error {
		var m MonthVersionCount
		if err := rows.Scan(&m.Month, &m.Version, &m.Num); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Month != out[b].Month {
			return out[a].Month < out[b].Month
		}
		return CompareVersions(out[a].Version, out[b].Version) < 0
	})
	return out, nil
}

// ecosystemQuery builds a query over the representative submissions in [$1, $2).
func ecosystemQuery(columns, tail string) string {
	return representativeCTE + `
	SELECT ` + columns + `
	FROM submissions s
	JOIN representative r ON r.id = s.id
	` + tail
}

func ecosystemTotalCount(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	return scanCount(ctx, db, ecosystemQuery("COUNT(*)", ""), q.Start, q.End)
}

func ecosystemOSVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := ecosystemQuery("s.os_version, s.build_arch, s.cxx_stdlib, COUNT(*)",
		"GROUP BY s.os_version, s.build_arch, s.cxx_stdlib")
	return scanOSCounts(ctx, db, query, []interface{}{q.Start, q.End})
}

func ecosystemXcodeVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := ecosystemQuery("s.xcode_version, s.os_version, COUNT(*)",
		"GROUP BY s.xcode_version, s.os_version")
	return scanXcodeCounts(ctx, db, query, []interface{}{q.Start, q.End})
}

func ecosystemMacPortsVersions(ctx context.Context, db storage.Querier, _ storage.Dialect, q facetQuery) (interface{}, error) {
	query := ecosystemQuery("s.macports_version, COUNT(*)", "GROUP BY s.macports_version")
	out := []MacPortsCount{}
	err := queryRows(ctx, db, query, []interface{}{q.Start, q.End}, func(rows *sql.Rows) error {
		var m MacPortsCount
		if err := rows.Scan(&m.MacPortsVersion, &m.Num); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		return CompareVersions(out[a].MacPortsVersion, out[b].MacPortsVersion) < 0
	})
	return out, nil
}

func ecosystemInstallsMonthly(ctx context.Context, db storage.Querier, dialect storage.Dialect, _ facetQuery) (interface{}, error) {
	query := fmt.Sprintf(`
		SELECT %s AS month, COUNT(DISTINCT user_id)
		FROM submissions
		GROUP BY 1
		ORDER BY 1 DESC
		LIMIT %d`, dialect.MonthOf("timestamp"), monthlyLimit)
	return scanMonthCounts(ctx, db, query, nil)
}

func scanOSCounts(ctx context.Context, db storage.Querier, query string, args []interface{}) ([]OSCount, error) {
	out := []OSCount{}
	err := queryRows(ctx, db, query, args, func(rows *sql.Rows) error {
		var o OSCount
		if err := rows.Scan(&o.OSVersion, &o.BuildArch, &o.CXXStdlib, &o.Num); err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		if c := CompareVersions(out[a].OSVersion, out[b].OSVersion); c != 0 {
			return c < 0
		}
		if out[a].BuildArch != out[b].BuildArch {
			return out[a].BuildArch < out[b].BuildArch
		}
		return out[a].CXXStdlib < out[b].CXXStdlib
	})
	return out, nil
}

func scanXcodeCounts(ctx context.Context, db storage.Querier, query string, args []interface{}) ([]XcodeCount, error) {
	out := []XcodeCount{}
	err := queryRows(ctx, db, query, args, func(rows *sql.Rows) error {
		var x XcodeCount
		if err := rows.Scan(&x.XcodeVersion, &x.OSVersion, &x.Num); err != nil {
			return err
		}
		out = append(out, x)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(a, b int) bool {
		if c := CompareVersions(out[a].OSVersion, out[b].OSVersion); c != 0 {
			return c < 0
		}
		return CompareVersions(out[a].XcodeVersion, out[b].XcodeVersion) < 0
	})
	return out, nil
}

// scanMonthCounts reads newest-first rows and returns them oldest first.
func scanMonthCounts(ctx context.Context, db storage.Querier, query string, args []interface{}) ([]MonthCount, error) {
	out := []MonthCount{}
	err := queryRows(ctx, db, query, args, func(rows *sql.Rows) error {
		var m MonthCount
		if err := rows.Scan(&m.Month, &m.Num); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out, nil
}
