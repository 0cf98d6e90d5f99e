package circulation

import (
	"context"
	"time"
)

// Queries are the read and write operations on the inventory and the borrow ledger.
// Each operation is individually atomic. The Workflow composes them inside Store.WithinTx.
type Queries interface {
	// FindItem looks up an item. found is false if it doesn't exist.
	FindItem(ctx context.Context, itemID ItemIDInt64) (item Item, found bool, err error)

	// DecrementQuantity takes one unit out of stock, conditioned on quantity > 0.
	// It returns the number of affected rows, 0 means out of stock (or no such item).
	DecrementQuantity(ctx context.Context, itemID ItemIDInt64) (rowsAffected int64, err error)

	// IncrementQuantity puts one unit back into stock. It reports whether a row was updated.
	IncrementQuantity(ctx context.Context, itemID ItemIDInt64) (bool, error)

	// InsertBorrow appends a new, unreturned BorrowRecord with fine 0.
	InsertBorrow(ctx context.Context, record BorrowRecord) error

	// FindActiveBorrow returns the most recent unreturned record of the patron for the item.
	FindActiveBorrow(ctx context.Context, patronID PatronIDString, itemID ItemIDInt64) (record BorrowRecord, found bool, err error)

	// MarkReturned sets returned = true and the fine, guarded by returned = false.
	// It reports whether a row was updated.
	MarkReturned(ctx context.Context, borrowID BorrowIDInt64, fine int64) (bool, error)

	// FineRows returns the patron's records with fine > 0 ordered by ascending ID.
	FineRows(ctx context.Context, patronID PatronIDString) ([]BorrowRecord, error)

	// SetFine replaces the fine of a record, guarded by its expected current fine.
	// It reports whether a row was updated.
	SetFine(ctx context.Context, borrowID BorrowIDInt64, expectedFine int64, newFine int64) (bool, error)

	// SumFine sums the fines of all the patron's records with fine > 0, 0 if there are none.
	SumFine(ctx context.Context, patronID PatronIDString) (int64, error)

	// UnreturnedRecords returns all records with returned = false and a due date before dueBefore,
	// ordered by due date and ID.
	UnreturnedRecords(ctx context.Context, dueBefore time.Time) ([]BorrowRecord, error)

	// PatronsWithFines returns the distinct patrons having at least one record with fine > 0, sorted.
	PatronsWithFines(ctx context.Context) ([]PatronIDString, error)
}

// Store gives access to Queries outside and inside a transaction.
type Store interface {
	Queries

	// WithinTx runs fn inside one transaction: begin, fn, commit.
	// If fn returns an error or panics, the transaction is rolled back before WithinTx returns.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error
}
