package storage

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Dialect captures the few places where PostgreSQL and SQLite disagree.
// All queries use $N placeholders, numbered in order of first appearance,
// which both lib/pq and go-sqlite3 bind positionally.
type Dialect interface {
	// DriverName is the database/sql driver name.
	DriverName() string
	// MonthOf returns an expression that formats a timestamp column as YYYY-MM.
	MonthOf(column string) string
	// IsUniqueViolation reports whether err is a unique constraint violation.
	IsUniqueViolation(err error) bool
	// Schema returns the DDL statements that create the statistics tables.
	Schema() []string
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverPostgres:
		return Postgres, nil
	case DriverSQLite, "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (must be postgres or sqlite3)", driver)
	}
}

var (
	// Postgres is the PostgreSQL dialect.
	Postgres Dialect = postgresDialect{}
	// SQLite is the SQLite dialect.
	SQLite Dialect = sqliteDialect{}
)

type postgresDialect struct{}

func (postgresDialect) DriverName() string { return DriverPostgres }

func (postgresDialect) MonthOf(column string) string {
	return fmt.Sprintf("to_char(date_trunc('month', %s), 'YYYY-MM')", column)
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (postgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS uuids (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES uuids(id),
			timestamp TIMESTAMPTZ NOT NULL,
			macports_version TEXT NOT NULL DEFAULT '',
			os_version TEXT NOT NULL DEFAULT '',
			xcode_version TEXT NOT NULL DEFAULT '',
			os_arch TEXT NOT NULL DEFAULT '',
			os_platform TEXT NOT NULL DEFAULT '',
			build_arch TEXT NOT NULL DEFAULT '',
			cxx_stdlib TEXT NOT NULL DEFAULT '',
			gcc_version TEXT NOT NULL DEFAULT '',
			prefix TEXT NOT NULL DEFAULT '',
			raw_json TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_timestamp_idx ON submissions (timestamp)`,
		`CREATE INDEX IF NOT EXISTS submissions_user_timestamp_idx ON submissions (user_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS installations (
			id BIGSERIAL PRIMARY KEY,
			submission_id BIGINT NOT NULL REFERENCES submissions(id),
			port TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			variants TEXT NOT NULL DEFAULT '',
			requested BOOLEAN NOT NULL DEFAULT FALSE,
			os_version TEXT NOT NULL DEFAULT '',
			build_arch TEXT NOT NULL DEFAULT '',
			cxx_stdlib TEXT NOT NULL DEFAULT '',
			xcode_version TEXT NOT NULL DEFAULT '',
			macports_version TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS installations_submission_idx ON installations (submission_id)`,
		`CREATE INDEX IF NOT EXISTS installations_port_lower_idx ON installations (LOWER(port))`,
		`CREATE TABLE IF NOT EXISTS ports (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			portdir TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ports_name_lower_idx ON ports (LOWER(name))`,
	}
}

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string { return DriverSQLite }

// go-sqlite3 stores timestamps as "YYYY-MM-DD HH:MM:SS...", so the month is a prefix.
func (sqliteDialect) MonthOf(column string) string {
	return fmt.Sprintf("substr(%s, 1, 7)", column)
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (sqliteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS uuids (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES uuids(id),
			timestamp TIMESTAMP NOT NULL,
			macports_version TEXT NOT NULL DEFAULT '',
			os_version TEXT NOT NULL DEFAULT '',
			xcode_version TEXT NOT NULL DEFAULT '',
			os_arch TEXT NOT NULL DEFAULT '',
			os_platform TEXT NOT NULL DEFAULT '',
			build_arch TEXT NOT NULL DEFAULT '',
			cxx_stdlib TEXT NOT NULL DEFAULT '',
			gcc_version TEXT NOT NULL DEFAULT '',
			prefix TEXT NOT NULL DEFAULT '',
			raw_json TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_timestamp_idx ON submissions (timestamp)`,
		`CREATE INDEX IF NOT EXISTS submissions_user_timestamp_idx ON submissions (user_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS installations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			submission_id INTEGER NOT NULL REFERENCES submissions(id),
			port TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			variants TEXT NOT NULL DEFAULT '',
			requested BOOLEAN NOT NULL DEFAULT 0,
			os_version TEXT NOT NULL DEFAULT '',
			build_arch TEXT NOT NULL DEFAULT '',
			cxx_stdlib TEXT NOT NULL DEFAULT '',
			xcode_version TEXT NOT NULL DEFAULT '',
			macports_version TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS installations_submission_idx ON installations (submission_id)`,
		`CREATE INDEX IF NOT EXISTS installations_port_lower_idx ON installations (LOWER(port))`,
		`CREATE TABLE IF NOT EXISTS ports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			portdir TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ports_name_lower_idx ON ports (LOWER(name))`,
	}
}
