package stats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portStats(t *testing.T, env *testEnv, port string, w Window, facets ...Facet) Result {
	t.Helper()
	result, err := env.aggregator.GetStats(context.Background(), &port, w, facets)
	require.NoError(t, err)
	return result
}

func TestGetStats_SubmissionOutsideWindowIgnored(t *testing.T) {
	env := setupTestEnv(t, testEpoch.AddDate(0, 0, -35))

	env.submit(t, "u", testPort{Name: "P", Version: "1.0"})
	env.clock.Advance(35 * 24 * time.Hour)
	env.submit(t, "u", testPort{Name: "P", Version: "1.0", Requested: "true"})
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 30}, FacetTotalCount, FacetReqCount)

	assert.Equal(t, Result{FacetTotalCount: int64(1), FacetReqCount: int64(1)}, result)
}

func TestGetStats_DistinctIdentities(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u1", testPort{Name: "P", Requested: "true"})
	env.submit(t, "u2", testPort{Name: "P"})
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 30}, FacetTotalCount, FacetReqCount)

	assert.Equal(t, int64(2), result[FacetTotalCount])
	assert.Equal(t, int64(1), result[FacetReqCount])
}

func TestGetStats_RepeatSubmissionsCountOnce(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u", testPort{Name: "P"})
	env.clock.Advance(time.Hour)
	single := portStats(t, env, "P", Window{Days: 30}, FacetTotalCount)

	env.clock.Advance(24 * time.Hour)
	env.submit(t, "u", testPort{Name: "P"})
	env.clock.Advance(time.Hour)
	double := portStats(t, env, "P", Window{Days: 30}, FacetTotalCount)

	assert.Equal(t, int64(1), double[FacetTotalCount])
	assert.LessOrEqual(t, double[FacetTotalCount].(int64)-single[FacetTotalCount].(int64), int64(1))
}

func TestGetStats_LatestSubmissionRepresentsIdentity(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u", testPort{Name: "P", Requested: "true"})
	env.clock.Advance(24 * time.Hour)
	env.submit(t, "u", testPort{Name: "Q"})
	env.clock.Advance(time.Hour)

	assert.Equal(t, int64(0), portStats(t, env, "P", Window{Days: 30}, FacetTotalCount)[FacetTotalCount])
	assert.Equal(t, int64(1), portStats(t, env, "Q", Window{Days: 30}, FacetTotalCount)[FacetTotalCount])
}

func TestGetStats_DaysAgoShiftsWindow(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u", testPort{Name: "P"})
	env.clock.Advance(10 * 24 * time.Hour)

	assert.Equal(t, int64(1), portStats(t, env, "P", Window{Days: 30}, FacetTotalCount)[FacetTotalCount])
	assert.Equal(t, int64(0), portStats(t, env, "P", Window{Days: 7, DaysAgo: 0}, FacetTotalCount)[FacetTotalCount])
	assert.Equal(t, int64(1), portStats(t, env, "P", Window{Days: 7, DaysAgo: 7}, FacetTotalCount)[FacetTotalCount])
}

func TestGetStats_PortNameIsCaseInsensitive(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u", testPort{Name: "Python312"})
	env.clock.Advance(time.Hour)

	assert.Equal(t, int64(1), portStats(t, env, "python312", Window{Days: 30}, FacetTotalCount)[FacetTotalCount])
}

func TestGetStats_EmptyWindowYieldsZeros(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u", testPort{Name: "P", Requested: "true"})
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 0},
		FacetTotalCount, FacetReqCount, FacetOSVersions, FacetXcodeVersions, FacetPortVersions, FacetVariants)

	assert.Equal(t, int64(0), result[FacetTotalCount])
	assert.Equal(t, int64(0), result[FacetReqCount])
	assert.Empty(t, result[FacetOSVersions])
	assert.Empty(t, result[FacetXcodeVersions])
	assert.Empty(t, result[FacetPortVersions])
	assert.Empty(t, result[FacetVariants])
	assert.Len(t, result, 6)
}

func TestGetStats_OnlyRequestedFacetsReturned(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	result := portStats(t, env, "P", Window{Days: 30}, FacetReqCount)

	assert.Len(t, result, 1)
	_, ok := result[FacetTotalCount]
	assert.False(t, ok)
}

func TestGetStats_OSVersionsSortedNumerically(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	for i, osVersion := range []string{"10.9", "10.10", "10.2"} {
		e := defaultEnvironment
		e.OSVersion = osVersion
		env.submitEnv(t, fmt.Sprintf("u%d", i), e, testPort{Name: "P"})
	}
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 30}, FacetOSVersions)

	rows := result[FacetOSVersions].([]OSCount)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"10.2", "10.9", "10.10"}, []string{rows[0].OSVersion, rows[1].OSVersion, rows[2].OSVersion})
	for _, row := range rows {
		assert.Equal(t, int64(1), row.Num)
		assert.Equal(t, "arm64", row.BuildArch)
		assert.Equal(t, "libc++", row.CXXStdlib)
	}
}

func TestGetStats_XcodeVersions(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	for i, pair := range [][2]string{{"15.3", "14.4"}, {"15.3", "14.4"}, {"14.3", "13.6"}} {
		e := defaultEnvironment
		e.XcodeVersion, e.OSVersion = pair[0], pair[1]
		env.submitEnv(t, fmt.Sprintf("u%d", i), e, testPort{Name: "P"})
	}
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 30}, FacetXcodeVersions)

	assert.Equal(t, []XcodeCount{
		{XcodeVersion: "14.3", OSVersion: "13.6", Num: 1},
		{XcodeVersion: "15.3", OSVersion: "14.4", Num: 2},
	}, result[FacetXcodeVersions])
}

func TestGetStats_PortVersionsAndVariants(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	env.submit(t, "u1", testPort{Name: "P", Version: "2.0_0", Variants: "+doc"})
	env.submit(t, "u2", testPort{Name: "P", Version: "2.0_0", Variants: "+doc"})
	env.submit(t, "u3", testPort{Name: "P", Version: "1.9_1"})
	env.clock.Advance(time.Hour)

	result := portStats(t, env, "P", Window{Days: 30}, FacetPortVersions, FacetVariants)

	assert.Equal(t, []VersionCount{{Version: "2.0_0", Num: 2}, {Version: "1.9_1", Num: 1}}, result[FacetPortVersions])
	assert.Equal(t, []VariantCount{{Variants: "+doc", Num: 2}, {Variants: "", Num: 1}}, result[FacetVariants])
}

func TestGetStats_MonthlyFacetsIgnoreWindowAndKeepTwelveMonths(t *testing.T) {
	start := time.Date(2025, time.January, 10, 12, 0, 0, 0, time.UTC)
	env := setupTestEnv(t, start)

	for month := 0; month < 14; month++ {
		env.submit(t, fmt.Sprintf("u%d", month), testPort{Name: "P", Version: "1.0"})
		next := start.AddDate(0, month+1, 0)
		env.clock.Advance(next.Sub(env.clock.Now()))
	}

	for _, w := range []Window{{Days: 7}, {Days: 365, DaysAgo: 90}, {Days: 0}} {
		result := portStats(t, env, "P", w, FacetInstallsMonthly, FacetVersionsMonthly)

		months := result[FacetInstallsMonthly].([]MonthCount)
		require.Len(t, months, 12)
		assert.Equal(t, "2025-03", months[0].Month)
		assert.Equal(t, "2026-02", months[11].Month)
		for _, m := range months {
			assert.Equal(t, int64(1), m.Num)
		}

		versions := result[FacetVersionsMonthly].([]MonthVersionCount)
		assert.Len(t, versions, 12)
	}
}

func TestGetStats_EcosystemFacets(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	older := defaultEnvironment
	older.MacPorts = "2.8.1"
	older.OSVersion = "12.7"
	env.submitEnv(t, "u1", older, testPort{Name: "P"})
	env.clock.Advance(time.Hour)
	env.submit(t, "u1", testPort{Name: "P"})
	env.submit(t, "u2")
	env.submitEnv(t, "u3", older)
	env.clock.Advance(time.Hour)

	result, err := env.aggregator.GetStats(context.Background(), nil, Window{Days: 30},
		[]Facet{FacetTotalCount, FacetMacPortsVersions, FacetOSVersions, FacetInstallsMonthly})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result[FacetTotalCount])
	assert.Equal(t, []MacPortsCount{
		{MacPortsVersion: "2.8.1", Num: 1},
		{MacPortsVersion: "2.9.3", Num: 2},
	}, result[FacetMacPortsVersions])
	assert.Equal(t, []OSCount{
		{OSVersion: "12.7", BuildArch: "arm64", CXXStdlib: "libc++", Num: 1},
		{OSVersion: "14.4", BuildArch: "arm64", CXXStdlib: "libc++", Num: 2},
	}, result[FacetOSVersions])
	assert.Equal(t, []MonthCount{{Month: "2026-03", Num: 3}}, result[FacetInstallsMonthly])
}

func TestGetStats_UnknownFacet(t *testing.T) {
	env := setupTestEnv(t, testEpoch)

	_, err := env.aggregator.GetStats(context.Background(), nil, Window{Days: 30}, []Facet{FacetReqCount})

	assert.True(t, errors.Is(err, ErrInvalidQuery))
}

func TestGetStats_CancelledContext(t *testing.T) {
	env := setupTestEnv(t, testEpoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := "P"
	_, err := env.aggregator.GetStats(ctx, &port, Window{Days: 30}, []Facet{FacetTotalCount})

	assert.Error(t, err)
}

func TestFacetNames(t *testing.T) {
	assert.Equal(t, []string{
		"installs_count_monthly", "os_versions", "port_versions", "req_count",
		"total_count", "variants", "versions_count_monthly", "xcode_versions",
	}, PortFacets())
	assert.Equal(t, []string{
		"installs_count_monthly", "macports_versions", "os_versions", "total_count", "xcode_versions",
	}, EcosystemFacets())
}

func TestWindowBounds(t *testing.T) {
	now := time.Date(2026, time.March, 31, 8, 0, 0, 0, time.FixedZone("EST", -5*3600))

	start, end := Window{Days: 30, DaysAgo: 7}.Bounds(now)

	assert.Equal(t, time.Date(2026, time.March, 24, 13, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2026, time.February, 22, 13, 0, 0, 0, time.UTC), start)
}
