// Package storage provides the relational store behind the usage-statistics pipeline.
//
// # Overview
//
// Statistics live in four tables:
//
//   - uuids: one row per reporting client, unique on the client identifier
//   - submissions: one immutable row per accepted report, with its environment
//   - installations: one row per reported port, with a snapshot of the environment
//   - ports: the slice of the port catalog needed for existence checks
//
// Two backends are supported through a small Dialect interface: PostgreSQL (lib/pq)
// for production and SQLite (go-sqlite3) for single-node deployments and tests.
// Queries are written once using $N placeholders.
//
// # Usage Example
//
//	cfg := storage.DefaultConfig()
//	cfg.Driver = storage.DriverPostgres
//	cfg.PostgresURL = "postgres://localhost:5432/portstats?sslmode=disable"
//	db, dialect, err := storage.Open(ctx, cfg)
//
// Deployments with read replicas open the primary and replicas through
// postgres.ConnectionManager and call Migrate on the primary.
package storage
