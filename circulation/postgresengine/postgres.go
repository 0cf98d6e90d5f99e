package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// Supported SQL dialects.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

const (
	defaultItemsTableName   = "items"
	defaultBorrowsTableName = "borrows"
)

const (
	logMsgBuildQueryFailed    = "failed to build sql statement"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database statement execution failed"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgRowsAffectedFailed  = "failed to get rows affected count"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgBeginTxFailed       = "failed to begin transaction"
	logMsgCommitTxFailed      = "failed to commit transaction"
	logMsgRollbackFailed      = "failed to roll back transaction"
	logMsgTxCommitted         = "transaction committed"
	logMsgTxRolledBack        = "transaction rolled back"
	logMsgGuardedUpdateMissed = "guarded update affected no rows"
	logMsgSchemaMigrated      = "schema migrated"
	logMsgSQLExecuted         = "executed sql for: "
	logMsgOperation           = "circulation store operation: "
	logAttrError              = "error"
	logAttrQuery              = "query"
	logAttrAction             = "action"
	logAttrDurationMS         = "duration_ms"
	logAttrDialect            = "dialect"
	logAttrBorrowID           = "borrow_id"
	actionFindItem            = "find_item"
	actionDecrementQuantity   = "decrement_quantity"
	actionIncrementQuantity   = "increment_quantity"
	actionInsertBorrow        = "insert_borrow"
	actionFindActiveBorrow    = "find_active_borrow"
	actionMarkReturned        = "mark_returned"
	actionFineRows            = "fine_rows"
	actionSetFine             = "set_fine"
	actionSumFine             = "sum_fine"
	actionUnreturnedRecords   = "unreturned_records"
	actionPatronsWithFines    = "patrons_with_fines"
	actionMigrate             = "migrate"
	actionTransaction         = "transaction"
	colID                     = "id"
	colItemType               = "item_type"
	colQuantity               = "quantity"
	colPatronID               = "patron_id"
	colItemID                 = "item_id"
	colBorrowDate             = "borrow_date"
	colDueDate                = "due_date"
	colReturned               = "returned"
	colFine                   = "fine"
	exprDecrementQuantity     = "quantity - 1"
	exprIncrementQuantity     = "quantity + 1"
	exprSumFine               = "COALESCE(SUM(fine), 0)"
)

// Store is a circulation.Store on a SQL database.
type Store struct {
	db               adapters.DBAdapter
	dialect          string
	itemsTableName   string
	borrowsTableName string
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
}

var _ circulation.Store = Store{}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (Store, error) {
	if db == nil {
		return Store{}, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (Store, error) {
	s := Store{
		db:               db,
		dialect:          DialectPostgres,
		itemsTableName:   defaultItemsTableName,
		borrowsTableName: defaultBorrowsTableName,
	}

	for _, option := range options {
		if err := option(&s); err != nil {
			return Store{}, err
		}
	}

	return s, nil
}

// WithinTx runs fn inside one database transaction.
// The transaction is committed if fn returns nil, and rolled back if fn fails or panics.
func (s Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx circulation.Queries) error) (err error) {
	start := time.Now()

	tx, beginErr := s.db.BeginTx(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, beginErr)
		s.recordErrorMetrics(ctx, actionTransaction, "begin")

		return errors.Join(circulation.ErrStorage, ErrBeginTxFailed, beginErr)
	}

	finished := false

	defer func() {
		p := recover()

		if !finished {
			// the context may already be canceled, the rollback must still reach the database
			if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
				s.logWarn(ctx, logMsgRollbackFailed, logAttrError, rollbackErr.Error())
			}

			s.logDebug(ctx, logMsgTxRolledBack, logAttrDurationMS, s.toMilliseconds(time.Since(start)))
			s.recordDurationMetrics(ctx, metricTxDuration, time.Since(start), actionTransaction, statusRolledBack)
		}

		if p != nil {
			panic(p)
		}
	}()

	if err = fn(ctx, s.session(tx)); err != nil {
		return err
	}

	finished = true

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitTxFailed, commitErr)
		s.recordErrorMetrics(ctx, actionTransaction, "commit")

		return errors.Join(circulation.ErrStorage, ErrCommitTxFailed, commitErr)
	}

	duration := time.Since(start)
	s.logOperation(ctx, logMsgTxCommitted, logAttrDurationMS, s.toMilliseconds(duration))
	s.recordDurationMetrics(ctx, metricTxDuration, duration, actionTransaction, statusSuccess)

	return nil
}

// FindItem implements circulation.Queries outside a transaction.
func (s Store) FindItem(ctx context.Context, itemID circulation.ItemIDInt64) (circulation.Item, bool, error) {
	return s.session(s.db).FindItem(ctx, itemID)
}

// DecrementQuantity implements circulation.Queries outside a transaction.
func (s Store) DecrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (int64, error) {
	return s.session(s.db).DecrementQuantity(ctx, itemID)
}

// IncrementQuantity implements circulation.Queries outside a transaction.
func (s Store) IncrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (bool, error) {
	return s.session(s.db).IncrementQuantity(ctx, itemID)
}

// InsertBorrow implements circulation.Queries outside a transaction.
func (s Store) InsertBorrow(ctx context.Context, record circulation.BorrowRecord) error {
	return s.session(s.db).InsertBorrow(ctx, record)
}

// FindActiveBorrow implements circulation.Queries outside a transaction.
func (s Store) FindActiveBorrow(
	ctx context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.BorrowRecord, bool, error) {
	return s.session(s.db).FindActiveBorrow(ctx, patronID, itemID)
}

// MarkReturned implements circulation.Queries outside a transaction.
func (s Store) MarkReturned(ctx context.Context, borrowID circulation.BorrowIDInt64, fine int64) (bool, error) {
	return s.session(s.db).MarkReturned(ctx, borrowID, fine)
}

// FineRows implements circulation.Queries outside a transaction.
func (s Store) FineRows(ctx context.Context, patronID circulation.PatronIDString) ([]circulation.BorrowRecord, error) {
	return s.session(s.db).FineRows(ctx, patronID)
}

// SetFine implements circulation.Queries outside a transaction.
func (s Store) SetFine(ctx context.Context, borrowID circulation.BorrowIDInt64, expectedFine, newFine int64) (bool, error) {
	return s.session(s.db).SetFine(ctx, borrowID, expectedFine, newFine)
}

// SumFine implements circulation.Queries outside a transaction.
func (s Store) SumFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error) {
	return s.session(s.db).SumFine(ctx, patronID)
}

// UnreturnedRecords implements circulation.Queries outside a transaction.
func (s Store) UnreturnedRecords(ctx context.Context, dueBefore time.Time) ([]circulation.BorrowRecord, error) {
	return s.session(s.db).UnreturnedRecords(ctx, dueBefore)
}

// PatronsWithFines implements circulation.Queries outside a transaction.
func (s Store) PatronsWithFines(ctx context.Context) ([]circulation.PatronIDString, error) {
	return s.session(s.db).PatronsWithFines(ctx)
}

func (s Store) session(exec adapters.Executor) session {
	return session{store: s, exec: exec}
}

func (s Store) builder() goqu.DialectWrapper {
	return goqu.Dialect(s.dialect)
}
