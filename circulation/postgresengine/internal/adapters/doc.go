// Package adapters provide database adapter implementations for the circulation SQL engine.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, allowing the engine to work with any supported connection type.
// sql.DB and sqlx.DB may be backed by any database/sql driver, e.g. lib/pq or go-sqlite3.
//
// Every adapter can open a transaction (DBTx) that offers the same Executor methods,
// so statements can run unchanged on the pool or inside a transaction.
package adapters
