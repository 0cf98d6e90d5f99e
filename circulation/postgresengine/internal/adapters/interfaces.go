package adapters

import "context"

// Executor runs statements with driver-bound arguments.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
}

// DBAdapter defines the interface for database operations needed by the circulation engine.
type DBAdapter interface {
	Executor
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBTx is an open transaction. Exactly one of Commit or Rollback must be called.
type DBTx interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
