package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/portstats/pkg/observability"
	"github.com/platinummonkey/portstats/pkg/storage"
)

// ConfigFileEnv names the optional YAML file applied before the environment.
const ConfigFileEnv = "PORTSTATS_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Aggregator    AggregatorConfig    `yaml:"aggregator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// QueryTimeout bounds every request context, and so every aggregation query.
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`

	// SubmitRateLimit is the per-client submission budget per SubmitRateWindow.
	// Zero disables rate limiting.
	SubmitRateLimit  int           `yaml:"submit_rate_limit"`
	SubmitRateBurst  int           `yaml:"submit_rate_burst"`
	SubmitRateWindow time.Duration `yaml:"submit_rate_window"`
	// TrustedProxies is a comma separated list of CIDRs or addresses whose
	// X-Forwarded-For and X-Real-IP headers identify the client.
	TrustedProxies string `yaml:"trusted_proxies"`
}

// TrustedProxyList splits TrustedProxies into its entries.
func (s ServerConfig) TrustedProxyList() []string {
	var entries []string
	for _, entry := range strings.Split(s.TrustedProxies, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// CatalogConfig locates the portindex used for port existence checks.
type CatalogConfig struct {
	PortindexPath string        `yaml:"portindex_path"`
	Watch         bool          `yaml:"watch"`
	WatchDelay    time.Duration `yaml:"watch_delay"`
}

// AggregatorConfig drives the cache warmer.
type AggregatorConfig struct {
	Schedule string `yaml:"schedule"` // cron spec
	TopDays  int    `yaml:"top_days"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or text

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			QueryTimeout:    30 * time.Second,
			MaxBodyBytes:    1 << 20,

			SubmitRateLimit:  30,
			SubmitRateBurst:  10,
			SubmitRateWindow: time.Hour,
		},
		Storage: storage.DefaultConfig(),
		Catalog: CatalogConfig{
			WatchDelay: 2 * time.Second,
		},
		Aggregator: AggregatorConfig{
			Schedule: "@every 10m",
			TopDays:  30,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          observability.FormatJSON,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "portstats",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by PORTSTATS_CONFIG_FILE if any, then PORTSTATS_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("PORTSTATS_HOST", s.Host)
	s.Port = getEnv("PORTSTATS_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("PORTSTATS_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("PORTSTATS_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("PORTSTATS_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("PORTSTATS_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.QueryTimeout = getEnvDuration("PORTSTATS_QUERY_TIMEOUT", s.QueryTimeout)
	s.MaxBodyBytes = getEnvInt64("PORTSTATS_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.SubmitRateLimit = getEnvInt("PORTSTATS_SUBMIT_RATE_LIMIT", s.SubmitRateLimit)
	s.SubmitRateBurst = getEnvInt("PORTSTATS_SUBMIT_RATE_BURST", s.SubmitRateBurst)
	s.SubmitRateWindow = getEnvDuration("PORTSTATS_SUBMIT_RATE_WINDOW", s.SubmitRateWindow)
	s.TrustedProxies = getEnv("PORTSTATS_TRUSTED_PROXIES", s.TrustedProxies)

	st := &c.Storage
	st.Driver = getEnv("PORTSTATS_DB_DRIVER", st.Driver)
	st.SQLitePath = getEnv("PORTSTATS_SQLITE_PATH", st.SQLitePath)
	st.PostgresURL = getEnv("PORTSTATS_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnv("PORTSTATS_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("PORTSTATS_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("PORTSTATS_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("PORTSTATS_POSTGRES_TIMEOUT", st.PostgresTimeout)

	st.S3Endpoint = getEnv("PORTSTATS_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("PORTSTATS_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("PORTSTATS_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("PORTSTATS_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("PORTSTATS_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("PORTSTATS_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.S3Prefix = getEnv("PORTSTATS_S3_PREFIX", st.S3Prefix)

	st.RedisURL = getEnv("PORTSTATS_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("PORTSTATS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("PORTSTATS_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("PORTSTATS_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("PORTSTATS_REDIS_POOL_SIZE", st.RedisPoolSize)

	st.CacheEnabled = getEnvBool("PORTSTATS_CACHE_ENABLED", st.CacheEnabled)
	st.L1CacheSize = getEnvInt("PORTSTATS_L1_CACHE_SIZE", st.L1CacheSize)
	if st.CacheTTL == nil {
		st.CacheTTL = map[string]time.Duration{}
	}
	for _, key := range []string{
		storage.TTLPortStats, storage.TTLEcosystemStats, storage.TTLGeneralStats,
		storage.TTLTopPorts, storage.TTLCatalog,
	} {
		if ttl := getEnvDuration("PORTSTATS_CACHE_TTL_"+strings.ToUpper(key), 0); ttl > 0 {
			st.CacheTTL[key] = ttl
		}
	}

	c.Catalog.PortindexPath = getEnv("PORTSTATS_CATALOG_PATH", c.Catalog.PortindexPath)
	c.Catalog.Watch = getEnvBool("PORTSTATS_CATALOG_WATCH", c.Catalog.Watch)
	c.Catalog.WatchDelay = getEnvDuration("PORTSTATS_CATALOG_WATCH_DELAY", c.Catalog.WatchDelay)

	c.Aggregator.Schedule = getEnv("PORTSTATS_AGGREGATOR_SCHEDULE", c.Aggregator.Schedule)
	c.Aggregator.TopDays = getEnvInt("PORTSTATS_AGGREGATOR_TOP_DAYS", c.Aggregator.TopDays)

	o := &c.Observability
	o.LogLevel = getEnv("PORTSTATS_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("PORTSTATS_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("PORTSTATS_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("PORTSTATS_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("PORTSTATS_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("PORTSTATS_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("PORTSTATS_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("PORTSTATS_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Server.SubmitRateLimit > 0 && c.Server.SubmitRateWindow <= 0 {
		return fmt.Errorf("submit rate window must be positive when rate limiting is enabled")
	}

	switch c.Storage.Driver {
	case storage.DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite3 storage")
		}
	case storage.DriverPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be postgres or sqlite3)", c.Storage.Driver)
	}

	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when an archive bucket is configured")
	}

	if c.Catalog.Watch && c.Catalog.PortindexPath == "" {
		return fmt.Errorf("catalog path is required when watching is enabled")
	}

	switch c.Observability.LogFormat {
	case observability.FormatJSON, observability.FormatText:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// CacheTTLs maps the configured TTLs for the statistics service.
func (c *Config) CacheTTLs() (port, ecosystem, general, top time.Duration) {
	return c.Storage.TTL(storage.TTLPortStats, 10*time.Minute),
		c.Storage.TTL(storage.TTLEcosystemStats, 30*time.Minute),
		c.Storage.TTL(storage.TTLGeneralStats, 10*time.Minute),
		c.Storage.TTL(storage.TTLTopPorts, time.Hour)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
