package storage

import (
	"context"
	"database/sql"
	"time"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the statistics writers.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Config for storage backend
type Config struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite3"

	// PostgreSQL config
	PostgresURL         string        `yaml:"postgres_url"`
	PostgresReplicaURLs string        `yaml:"postgres_replica_urls"` // Comma-separated read replica URLs
	PostgresMaxConns    int           `yaml:"postgres_max_conns"`
	PostgresMinConns    int           `yaml:"postgres_min_conns"`
	PostgresTimeout     time.Duration `yaml:"postgres_timeout"`

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`

	// S3 config (raw submission archive)
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3Prefix       string `yaml:"s3_prefix"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// Cache config
	CacheEnabled bool                     `yaml:"cache_enabled"`
	CacheTTL     map[string]time.Duration `yaml:"cache_ttl"`
	L1CacheSize  int                      `yaml:"l1_cache_size"` // Entries
}

// Cache TTL keys
const (
	TTLPortStats      = "port_stats"
	TTLEcosystemStats = "ecosystem_stats"
	TTLGeneralStats   = "general_stats"
	TTLTopPorts       = "top_ports"
	TTLCatalog        = "catalog"
)

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:           DriverSQLite,
		SQLitePath:       "portstats.db",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Prefix:         "submissions",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			TTLPortStats:      10 * time.Minute,
			TTLEcosystemStats: 30 * time.Minute,
			TTLGeneralStats:   10 * time.Minute,
			TTLTopPorts:       1 * time.Hour,
			TTLCatalog:        5 * time.Minute,
		},
		L1CacheSize: 1024,
	}
}

// TTL returns the configured TTL for a cache key class, or fallback when unset.
func (c Config) TTL(key string, fallback time.Duration) time.Duration {
	if ttl, ok := c.CacheTTL[key]; ok && ttl > 0 {
		return ttl
	}
	return fallback
}
