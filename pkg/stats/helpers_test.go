package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portstats/pkg/storage"
)

var testEpoch = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db         *sql.DB
	clock      *clockwork.FakeClock
	ingestor   *Ingestor
	aggregator *Aggregator
}

// setupTestEnv opens a fresh in-memory SQLite database with the schema applied.
func setupTestEnv(t testing.TB, start time.Time) *testEnv {
	t.Helper()

	db, dialect, err := storage.Open(context.Background(), storage.Config{
		Driver:     storage.DriverSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClockAt(start)
	opts := Options{Clock: clock}
	return &testEnv{
		db:         db,
		clock:      clock,
		ingestor:   NewIngestor(db, dialect, opts),
		aggregator: NewAggregator(db, dialect, opts),
	}
}

type testPort struct {
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	Requested string `json:"requested,omitempty"`
	Variants  string `json:"variants,omitempty"`
}

type testEnvironment struct {
	OSVersion    string
	BuildArch    string
	CXXStdlib    string
	XcodeVersion string
	MacPorts     string
}

var defaultEnvironment = testEnvironment{
	OSVersion:    "14.4",
	BuildArch:    "arm64",
	CXXStdlib:    "libc++",
	XcodeVersion: "15.3",
	MacPorts:     "2.9.3",
}

func reportJSON(t testing.TB, clientID string, env testEnvironment, ports ...testPort) []byte {
	t.Helper()
	if ports == nil {
		ports = []testPort{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"id": clientID,
		"os": map[string]string{
			"macports_version": env.MacPorts,
			"osx_version":      env.OSVersion,
			"os_arch":          "arm",
			"os_platform":      "darwin",
			"cxx_stdlib":       env.CXXStdlib,
			"build_arch":       env.BuildArch,
			"gcc_version":      "none",
			"prefix":           "/opt/local",
			"xcode_version":    env.XcodeVersion,
		},
		"active_ports": ports,
	})
	require.NoError(t, err)
	return body
}

func (e *testEnv) submit(t testing.TB, clientID string, ports ...testPort) *IngestResult {
	t.Helper()
	return e.submitEnv(t, clientID, defaultEnvironment, ports...)
}

func (e *testEnv) submitEnv(t testing.TB, clientID string, env testEnvironment, ports ...testPort) *IngestResult {
	t.Helper()
	result, err := e.ingestor.Submit(context.Background(), reportJSON(t, clientID, env, ports...))
	require.NoError(t, err)
	return result
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}
