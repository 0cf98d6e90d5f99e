package postgresengine

import (
	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithItemsTableName sets the name of the inventory table.
func WithItemsTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		s.itemsTableName = tableName

		return nil
	}
}

// WithBorrowsTableName sets the name of the borrow ledger table.
func WithBorrowsTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		s.borrowsTableName = tableName

		return nil
	}
}

// WithDialect sets the SQL dialect, DialectPostgres (default) or DialectSQLite.
// The dialect must match the driver behind the connection.
func WithDialect(dialect string) Option {
	return func(s *Store) error {
		switch dialect {
		case DialectPostgres, DialectSQLite:
			s.dialect = dialect
			return nil
		default:
			return ErrUnsupportedDialect
		}
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: committed transactions with durations, conflicts on guarded updates (production-safe)
// Warn level: non-critical issues like rollback or cleanup failures
// Error level: failures that cause an operation to fail.
func WithLogger(logger circulation.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
// It receives the same messages as the Logger, with the operation's context for trace correlation.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Store.
// The collector will receive statement and transaction durations, conflicts, and database errors.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(s *Store) error {
		s.metricsCollector = collector
		return nil
	}
}
