// Package enginetest provides fixtures for tests against the SQL engine.
//
// By default, the engine runs on an SQLite in-memory database. When CIRCULATION_TEST_POSTGRES_DSN is set,
// PostgreSQL variants are available, and ADAPTER_TYPE selects the adapter (pgx.pool, sql.db, sqlx.db).
package enginetest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/config"
)

// PostgresDSNEnv names the environment variable that enables the PostgreSQL tests.
const PostgresDSNEnv = "CIRCULATION_TEST_POSTGRES_DSN"

// AdapterTypeEnv names the environment variable that selects the PostgreSQL adapter.
const AdapterTypeEnv = "ADAPTER_TYPE"

// Wrapper abstracts over the different connection types.
type Wrapper interface {
	Store() postgresengine.Store
	Dialect() string
	Close()
	sqlDB() *sql.DB
	pgxPool() *pgxpool.Pool
}

type sqlWrapper struct {
	db      *sql.DB
	store   postgresengine.Store
	dialect string
}

func (w *sqlWrapper) Store() postgresengine.Store { return w.store }
func (w *sqlWrapper) Dialect() string             { return w.dialect }
func (w *sqlWrapper) Close()                      { _ = w.db.Close() }
func (w *sqlWrapper) sqlDB() *sql.DB              { return w.db }
func (w *sqlWrapper) pgxPool() *pgxpool.Pool      { return nil }

type pgxWrapper struct {
	pool  *pgxpool.Pool
	store postgresengine.Store
}

func (w *pgxWrapper) Store() postgresengine.Store { return w.store }
func (w *pgxWrapper) Dialect() string             { return postgresengine.DialectPostgres }
func (w *pgxWrapper) Close()                      { w.pool.Close() }
func (w *pgxWrapper) sqlDB() *sql.DB              { return nil }
func (w *pgxWrapper) pgxPool() *pgxpool.Pool      { return w.pool }

// NewSQLite creates a migrated Store on a fresh SQLite in-memory database.
func NewSQLite(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	db, err := config.OpenSQLDB(context.Background(), config.Database{Adapter: config.AdapterSQLite, DSN: ":memory:"})
	require.NoError(t, err, "error connecting to DB in test setup")

	options = append([]postgresengine.Option{postgresengine.WithDialect(postgresengine.DialectSQLite)}, options...)
	store, err := postgresengine.NewStoreFromSQLDB(db, options...)
	require.NoError(t, err, "error creating the store in test setup")

	w := &sqlWrapper{db: db, store: store, dialect: postgresengine.DialectSQLite}
	migrate(t, w)
	t.Cleanup(w.Close)

	return w
}

// NewPostgres creates a migrated Store on the PostgreSQL database from CIRCULATION_TEST_POSTGRES_DSN,
// with the adapter from ADAPTER_TYPE, and empties the tables. The test is skipped when no DSN is set.
func NewPostgres(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresDSNEnv)
	}

	ctx := context.Background()
	dbConfig := config.Default().Database
	dbConfig.DSN = dsn

	var w Wrapper

	switch adapterType := strings.ToLower(os.Getenv(AdapterTypeEnv)); adapterType {
	case config.AdapterPGXPool, "":
		pool, err := config.OpenPGXPool(ctx, dbConfig)
		require.NoError(t, err, "error connecting to DB pool in test setup")
		store, err := postgresengine.NewStoreFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating the store in test setup")
		w = &pgxWrapper{pool: pool, store: store}

	case config.AdapterSQLDB:
		db, err := config.OpenSQLDB(ctx, dbConfig)
		require.NoError(t, err, "error connecting to DB in test setup")
		store, err := postgresengine.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating the store in test setup")
		w = &sqlWrapper{db: db, store: store, dialect: postgresengine.DialectPostgres}

	case config.AdapterSQLX:
		db, err := config.OpenSQLX(ctx, dbConfig)
		require.NoError(t, err, "error connecting to DB in test setup")
		store, err := postgresengine.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating the store in test setup")
		w = &sqlWrapper{db: db.DB, store: store, dialect: postgresengine.DialectPostgres}

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported adapter type from env: %s", adapterType))
	}

	migrate(t, w)
	CleanUp(t, w)
	t.Cleanup(w.Close)

	return w
}

// CleanUp empties the default tables.
func CleanUp(t testing.TB, w Wrapper) {
	t.Helper()

	statements := []string{"DELETE FROM borrows", "DELETE FROM items"}
	if w.Dialect() == postgresengine.DialectPostgres {
		statements = []string{"TRUNCATE TABLE borrows, items RESTART IDENTITY"}
	}

	for _, statement := range statements {
		exec(t, w, statement)
	}
}

// GivenItem puts an item into the default items table.
func GivenItem(t testing.TB, w Wrapper, item circulation.Item) {
	t.Helper()

	statement, args, err := goqu.Dialect(w.Dialect()).
		Insert("items").
		Prepared(true).
		Rows(goqu.Record{
			"id":        item.ID,
			"title":     fmt.Sprintf("%s #%d", item.Type, item.ID),
			"item_type": item.Type.String(),
			"quantity":  item.Quantity,
		}).
		ToSQL()
	require.NoError(t, err, "error in arranging test data")

	exec(t, w, statement, args...)
}

// GivenItemWithRawType puts an item with an arbitrary type tag into the default items table.
func GivenItemWithRawType(t testing.TB, w Wrapper, itemID int64, typeTag string, quantity int) {
	t.Helper()

	statement, args, err := goqu.Dialect(w.Dialect()).
		Insert("items").
		Prepared(true).
		Rows(goqu.Record{"id": itemID, "item_type": typeTag, "quantity": quantity}).
		ToSQL()
	require.NoError(t, err, "error in arranging test data")

	exec(t, w, statement, args...)
}

// GivenReturnedBorrowWithFine inserts a returned borrow record carrying a fine.
func GivenReturnedBorrowWithFine(t testing.TB, w Wrapper, record circulation.BorrowRecord) {
	t.Helper()

	statement, args, err := goqu.Dialect(w.Dialect()).
		Insert("borrows").
		Prepared(true).
		Rows(goqu.Record{
			"patron_id":   record.PatronID,
			"item_id":     record.ItemID,
			"borrow_date": circulation.ToDate(record.BorrowDate),
			"due_date":    circulation.ToDate(record.DueDate),
			"returned":    true,
			"fine":        record.Fine,
		}).
		ToSQL()
	require.NoError(t, err, "error in arranging test data")

	exec(t, w, statement, args...)
}

// ItemQuantity reads the current quantity of an item.
func ItemQuantity(t testing.TB, w Wrapper, itemID int64) int {
	t.Helper()

	item, found, err := w.Store().FindItem(context.Background(), itemID)
	require.NoError(t, err)
	require.True(t, found)

	return item.Quantity
}

// Borrows reads all borrow records ordered by ID.
func Borrows(t testing.TB, w Wrapper) []circulation.BorrowRecord {
	t.Helper()

	statement, args, err := goqu.Dialect(w.Dialect()).
		From("borrows").
		Prepared(true).
		Select("id", "patron_id", "item_id", "borrow_date", "due_date", "returned", "fine").
		Order(goqu.C("id").Asc()).
		ToSQL()
	require.NoError(t, err)

	var records []circulation.BorrowRecord

	scan := func(scanFn func(dest ...any) error) {
		var r circulation.BorrowRecord
		require.NoError(t, scanFn(&r.ID, &r.PatronID, &r.ItemID, &r.BorrowDate, &r.DueDate, &r.Returned, &r.Fine))
		r.BorrowDate = circulation.ToDate(r.BorrowDate)
		r.DueDate = circulation.ToDate(r.DueDate)
		records = append(records, r)
	}

	if pool := w.pgxPool(); pool != nil {
		rows, queryErr := pool.Query(context.Background(), statement, args...)
		require.NoError(t, queryErr)
		defer rows.Close()

		for rows.Next() {
			scan(rows.Scan)
		}

		require.NoError(t, rows.Err())

		return records
	}

	rows, err := w.sqlDB().QueryContext(context.Background(), statement, args...)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		scan(rows.Scan)
	}

	require.NoError(t, rows.Err())

	return records
}

func migrate(t testing.TB, w Wrapper) {
	t.Helper()

	require.NoError(t, w.Store().Migrate(context.Background()), "error migrating the schema in test setup")
}

func exec(t testing.TB, w Wrapper, statement string, args ...any) {
	t.Helper()

	if pool := w.pgxPool(); pool != nil {
		_, err := pool.Exec(context.Background(), statement, args...)
		require.NoError(t, err, "error in arranging test data")

		return
	}

	_, err := w.sqlDB().ExecContext(context.Background(), statement, args...)
	require.NoError(t, err, "error in arranging test data")
}
