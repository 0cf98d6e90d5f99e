// Package postgresengine provides a SQL implementation of circulation.Store.
//
// The engine keeps the inventory (items table) and the borrow ledger (borrows table) in one database,
// so a borrow or a return is one local transaction. PostgreSQL is the production target; the SQLite
// dialect exists for embedded use and tests.
//
// Key features:
//   - Multiple database adapter support (pgx.Pool, sql.DB, sqlx.DB)
//   - Conditioned stock decrement (quantity > 0) relying on row locks, no lost last unit
//   - Guarded updates on borrow records, reported as "no row affected" for optimistic retries
//   - Partial unique index for at most one unreturned record per patron and item
//   - Configurable table names, dialect, and dual-logger support
//   - Transaction-safe operations with rollback on error or panic
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewStoreFromPGXPool(db)
//	_ = store.Migrate(ctx)
//
//	// With SQL debugging and operational metrics
//	store, _ := postgresengine.NewStoreFromPGXPool(
//		db,
//		postgresengine.WithBorrowsTableName("loans"),
//		postgresengine.WithLogger(slog.Default()),
//		postgresengine.WithMetrics(collector),
//	)
//
//	// SQLite, e.g. in tests
//	db, _ := sql.Open("sqlite3", ":memory:")
//	db.SetMaxOpenConns(1)
//	store, _ := postgresengine.NewStoreFromSQLDB(db, postgresengine.WithDialect(postgresengine.DialectSQLite))
//
//	workflow, _ := circulation.NewWorkflow(store)
package postgresengine
