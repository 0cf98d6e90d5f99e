package adapters

import (
	"context"
	"database/sql"
)

// stdRows wraps standard library sql.Rows to implement DBRows interface.
type stdRows struct {
	rows *sql.Rows
}

// Next advances to the next row.
func (s *stdRows) Next() bool {
	return s.rows.Next()
}

// Scan copies row values into provided destinations.
func (s *stdRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

// Err returns the error, if any, that was encountered during iteration.
func (s *stdRows) Err() error {
	return s.rows.Err()
}

// Close closes the rows iterator.
func (s *stdRows) Close() error {
	return s.rows.Close()
}

// stdResult wraps standard library sql.Result to implement DBResult interface.
type stdResult struct {
	result sql.Result
}

// RowsAffected returns the number of rows affected by the command.
func (s *stdResult) RowsAffected() (int64, error) {
	return s.result.RowsAffected()
}

// stdExecutor is the part of sql.DB, sql.Tx, sqlx.DB and sqlx.Tx the adapters need.
type stdExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func stdQuery(ctx context.Context, db stdExecutor, query string, args ...any) (DBRows, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdRows{rows: rows}, nil
}

func stdExec(ctx context.Context, db stdExecutor, query string, args ...any) (DBResult, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

// stdTx wraps a database/sql transaction, which ignores the context on commit and rollback.
type stdTx struct {
	tx       stdExecutor
	commit   func() error
	rollback func() error
}

func (t *stdTx) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	return stdQuery(ctx, t.tx, query, args...)
}

func (t *stdTx) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	return stdExec(ctx, t.tx, query, args...)
}

func (t *stdTx) Commit(_ context.Context) error {
	return t.commit()
}

func (t *stdTx) Rollback(_ context.Context) error {
	return t.rollback()
}
