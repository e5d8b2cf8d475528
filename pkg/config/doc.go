// Package config loads portstats configuration.
//
// Values are resolved in three layers: built-in defaults, then an optional
// YAML file named by PORTSTATS_CONFIG_FILE, then PORTSTATS_* environment
// variables. The result is validated before use.
//
// Server settings:
//
//	PORTSTATS_HOST="0.0.0.0"
//	PORTSTATS_PORT="8080"
//	PORTSTATS_QUERY_TIMEOUT="30s"
//	PORTSTATS_SUBMIT_RATE_LIMIT="30"  # per client per window, 0 disables
//	PORTSTATS_SUBMIT_RATE_WINDOW="1h"
//	PORTSTATS_TRUSTED_PROXIES="10.0.0.0/8"  # peers allowed to set X-Forwarded-For
//
// Storage settings:
//
//	PORTSTATS_DB_DRIVER="postgres"  # postgres or sqlite3
//	PORTSTATS_POSTGRES_URL="postgres://localhost/portstats"
//	PORTSTATS_POSTGRES_REPLICA_URLS="postgres://replica1/portstats,postgres://replica2/portstats"
//	PORTSTATS_S3_BUCKET="portstats-submissions"
//	PORTSTATS_REDIS_URL="redis://localhost:6379"
//	PORTSTATS_CACHE_TTL_TOP_PORTS="1h"
//
// Catalog and cache warmer:
//
//	PORTSTATS_CATALOG_PATH="/var/db/portindex.json"
//	PORTSTATS_CATALOG_WATCH="true"
//	PORTSTATS_AGGREGATOR_SCHEDULE="@every 10m"
//
// Observability settings:
//
//	PORTSTATS_LOG_LEVEL="info"  # debug, info, warn, error
//	PORTSTATS_LOG_FORMAT="json" # json or text
//	PORTSTATS_OTEL_ENABLED="true"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	  query_timeout: 30s
//	storage:
//	  driver: postgres
//	  postgres_url: postgres://localhost/portstats
//	  cache_ttl:
//	    top_ports: 1h
//	observability:
//	  log_level: debug
package config
