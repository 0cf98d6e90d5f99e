package config

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"
)

// ErrConnectFailed is returned when a connection can't be opened or doesn't answer a ping.
var ErrConnectFailed = errors.New("connecting to the database failed")

// PGXPoolConfig creates a pgxpool.Config from the database configuration.
func PGXPoolConfig(d Database) (*pgxpool.Config, error) {
	dbConfig, err := pgxpool.ParseConfig(d.DSN)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	if d.MaxConns > 0 {
		dbConfig.MaxConns = d.MaxConns
	}

	dbConfig.MinConns = d.MinConns
	dbConfig.MaxConnLifetime = d.MaxConnLifetime
	dbConfig.MaxConnIdleTime = d.MaxConnIdleTime
	dbConfig.ConnConfig.ConnectTimeout = d.ConnectTimeout

	return dbConfig, nil
}

// OpenPGXPool creates a pgx pool and pings the database.
func OpenPGXPool(ctx context.Context, d Database) (*pgxpool.Pool, error) {
	dbConfig, err := PGXPoolConfig(d)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, errors.Join(ErrConnectFailed, err)
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectFailed, pingErr)
	}

	return pool, nil
}

// OpenSQLDB creates a configured *sql.DB (lib/pq, or go-sqlite3 for the sqlite adapter) and pings the database.
func OpenSQLDB(ctx context.Context, d Database) (*sql.DB, error) {
	db, err := sql.Open(d.driverName(), d.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectFailed, err)
	}

	d.configurePool(db)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectFailed, pingErr)
	}

	return db, nil
}

// OpenSQLX creates a configured *sqlx.DB and pings the database.
func OpenSQLX(ctx context.Context, d Database) (*sqlx.DB, error) {
	db, err := sqlx.Open(d.driverName(), d.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectFailed, err)
	}

	d.configurePool(db.DB)

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectFailed, pingErr)
	}

	return db, nil
}

func (d Database) driverName() string {
	if d.IsSQLite() {
		return driverSQLite
	}

	return driverPostgres
}

func (d Database) configurePool(db *sql.DB) {
	if d.IsSQLite() {
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
		return
	}

	if d.MaxConns > 0 {
		db.SetMaxOpenConns(int(d.MaxConns))
	}

	db.SetMaxIdleConns(int(d.MinConns))
	db.SetConnMaxLifetime(d.MaxConnLifetime)
	db.SetConnMaxIdleTime(d.MaxConnIdleTime)
}
