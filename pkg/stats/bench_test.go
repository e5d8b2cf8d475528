package stats

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedBenchmark(b *testing.B, users int) *testEnv {
	b.Helper()
	env := setupTestEnv(b, testEpoch)
	for i := 0; i < users; i++ {
		env.submit(b, fmt.Sprintf("bench-%d", i),
			testPort{Name: "curl", Version: "8.6.0", Requested: "true"},
			testPort{Name: fmt.Sprintf("port%d", i%50), Version: "1.0"},
			testPort{Name: "zlib", Version: "1.3.1"})
	}
	env.clock.Advance(time.Hour)
	return env
}

func BenchmarkSubmit(b *testing.B) {
	env := setupTestEnv(b, testEpoch)
	bodies := make([][]byte, 100)
	for i := range bodies {
		bodies[i] = reportJSON(b, fmt.Sprintf("bench-%d", i), defaultEnvironment,
			testPort{Name: "curl", Version: "8.6.0"}, testPort{Name: "zlib", Version: "1.3.1"})
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.ingestor.Submit(ctx, bodies[i%len(bodies)]); err != nil {
			b.Fatalf("submit: %v", err)
		}
	}
}

func BenchmarkGetStats_Port(b *testing.B) {
	env := seedBenchmark(b, 500)
	port := "curl"
	facets := []Facet{FacetTotalCount, FacetReqCount, FacetOSVersions, FacetPortVersions, FacetInstallsMonthly}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.aggregator.GetStats(ctx, &port, Window{Days: 30}, facets); err != nil {
			b.Fatalf("get stats: %v", err)
		}
	}
}

func BenchmarkGetTopPackages(b *testing.B) {
	env := seedBenchmark(b, 500)
	q := TopQuery{Days: 30, Count: DefaultTopCount, Page: 1, PaginateBy: DefaultTopPaginateBy, SortBy: DefaultTopSort}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := env.aggregator.GetTopPackages(ctx, q); err != nil {
			b.Fatalf("top packages: %v", err)
		}
	}
}
