package postgresengine

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Configuration errors.
var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrEmptyTableName        = errors.New("table name must not be empty")
	ErrUnsupportedDialect    = errors.New("unsupported sql dialect")
)

// Failure details. They are always joined with circulation.ErrStorage.
var (
	ErrBuildingQueryFailed       = errors.New("building the query failed")
	ErrQueryingFailed            = errors.New("querying the database failed")
	ErrExecutingFailed           = errors.New("executing the statement failed")
	ErrScanningDBRowFailed       = errors.New("scanning the database row failed")
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
	ErrBeginTxFailed             = errors.New("beginning the transaction failed")
	ErrCommitTxFailed            = errors.New("committing the transaction failed")
	ErrMigrationFailed           = errors.New("migrating the schema failed")
)

const uniqueViolationCode = "23505"

// isUniqueViolation recognizes unique constraint violations of all supported drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}
