package circulation

import (
	"errors"
)

// Workflow errors. Precondition violations are detected before any mutation.
var (
	ErrNotFound           = errors.New("item not found")
	ErrOutOfStock         = errors.New("item is out of stock")
	ErrNoActiveBorrow     = errors.New("no active borrow for patron and item")
	ErrAlreadyBorrowed    = errors.New("item is already borrowed by this patron")
	ErrUnpaidFineBlocking = errors.New("patron has unpaid fines")
	ErrUnknownItemType    = errors.New("unknown item type")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
)

// ErrStorage marks every failure of the backing store, including failures in the middle of a transaction.
// Store implementations combine it with a more specific cause via errors.Join.
var ErrStorage = errors.New("storage error")

// ErrConcurrencyConflict is returned by a store when a guarded update affected no rows
// because the row changed since it was read. The Workflow retries on this error.
var ErrConcurrencyConflict = errors.New("concurrency error, no rows were affected")

// ErrNilStore is returned by NewWorkflow when no Store is supplied.
var ErrNilStore = errors.New("store must not be nil")

// isDomainError reports whether err already carries one of the workflow's error kinds.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound,
		ErrOutOfStock,
		ErrNoActiveBorrow,
		ErrAlreadyBorrowed,
		ErrUnpaidFineBlocking,
		ErrUnknownItemType,
		ErrInvalidAmount,
		ErrStorage,
		ErrConcurrencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// asStorageError makes sure every error leaving the Workflow can be classified with errors.Is.
// Errors of a known kind pass through unchanged, anything else is joined with ErrStorage.
func asStorageError(err error) error {
	if err == nil || isDomainError(err) {
		return err
	}

	return errors.Join(ErrStorage, err)
}
