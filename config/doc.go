// Package config provides the configuration of the circulation tools and the database connection factories.
//
// Configuration is layered: built-in defaults, then an optional YAML file, then environment
// variables with the CIRCULATION_ prefix (e.g. CIRCULATION_DATABASE_DSN).
//
// The factories create connections for the store's supported adapters (pgx.Pool, sql.DB, sqlx.DB),
// backed by PostgreSQL or, for local use and tests, by SQLite.
package config
