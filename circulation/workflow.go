package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Workflow orchestrates borrowing, returning and fine payments on top of a Store.
//
// Every mutating operation runs as one atomic unit inside Store.WithinTx. Preconditions
// (unpaid fines, invalid amounts) are checked before anything is written; when an atomic unit
// fails, it is rolled back completely and the error is returned, nothing is partially applied.
//
// All returned errors can be classified with errors.Is against the sentinel errors of this package.
// Failures of the store that carry no known kind are joined with ErrStorage.
type Workflow struct {
	store           Store
	clock           func() time.Time
	retry           retryConfig
	detachedRestock bool
}

// Option configures a Workflow.
type Option func(*Workflow) error

// WithClock replaces time.Now as the source of "today".
func WithClock(clock func() time.Time) Option {
	return func(w *Workflow) error {
		if clock != nil {
			w.clock = clock
		}

		return nil
	}
}

// WithRetryOptions configures the retry of ReturnItem and PayFine on ErrConcurrencyConflict.
func WithRetryOptions(opts ...RetryOption) Option {
	return func(w *Workflow) error {
		for _, opt := range opts {
			if err := opt(&w.retry); err != nil {
				return err
			}
		}

		return nil
	}
}

// WithDetachedRestock moves the quantity increment of ReturnItem out of the transaction.
// The increment then happens after commit on a best-effort basis: when it fails, the return stays
// committed and Return.Restocked is false. By default, the increment is part of the atomic unit.
func WithDetachedRestock() Option {
	return func(w *Workflow) error {
		w.detachedRestock = true
		return nil
	}
}

// NewWorkflow creates a Workflow with optional configuration.
func NewWorkflow(store Store, opts ...Option) (Workflow, error) {
	if store == nil {
		return Workflow{}, ErrNilStore
	}

	w := Workflow{
		store: store,
		clock: time.Now,
		retry: defaultRetryConfig(),
	}

	for _, opt := range opts {
		if err := opt(&w); err != nil {
			return Workflow{}, err
		}
	}

	return w, nil
}

// BorrowItem checks an item out to a patron.
//
// Business Rules:
//
//	ERROR: ErrUnpaidFineBlocking if the patron has any unpaid fine
//	ERROR: ErrNotFound if the item does not exist
//	ERROR: ErrAlreadyBorrowed if the patron already holds an unreturned copy of the item
//	ERROR: ErrOutOfStock if no unit is left, the inserted record is rolled back with it
//	THEN: one unreturned BorrowRecord (fine 0, due = today + loan period) and quantity - 1
func (w Workflow) BorrowItem(ctx context.Context, patronID PatronIDString, itemID ItemIDInt64) (Loan, error) {
	today := ToDate(w.clock())

	var loan Loan

	err := w.store.WithinTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := guardNoUnpaidFine(ctx, tx, patronID); err != nil {
			return err
		}

		item, found, err := tx.FindItem(ctx, itemID)
		if err != nil {
			return err
		}

		if !found {
			return ErrNotFound
		}

		_, alreadyBorrowed, err := tx.FindActiveBorrow(ctx, patronID, itemID)
		if err != nil {
			return err
		}

		if alreadyBorrowed {
			return ErrAlreadyBorrowed
		}

		record := BorrowRecord{
			PatronID:   patronID,
			ItemID:     itemID,
			BorrowDate: today,
			DueDate:    item.Type.DueDate(today),
		}

		if err = tx.InsertBorrow(ctx, record); err != nil {
			return err
		}

		rowsAffected, err := tx.DecrementQuantity(ctx, itemID)
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return ErrOutOfStock
		}

		loan = Loan{
			PatronID:   patronID,
			ItemID:     itemID,
			ItemType:   item.Type,
			BorrowDate: record.BorrowDate,
			DueDate:    record.DueDate,
		}

		return nil
	})

	if err != nil {
		return Loan{}, asStorageError(err)
	}

	return loan, nil
}

// ReturnItem takes an item back from a patron and fixes the fine of the borrow record.
//
// Business Rules:
//
//	ERROR: ErrUnpaidFineBlocking if the patron has any unpaid fine
//	ERROR: ErrNoActiveBorrow if the patron holds no unreturned copy of the item
//	ERROR: ErrNotFound if the item no longer exists
//	THEN: the most recent open record is marked returned with fine = overdue days × rate, and quantity + 1
func (w Workflow) ReturnItem(ctx context.Context, patronID PatronIDString, itemID ItemIDInt64) (Return, error) {
	var result Return

	err := retryWithExponentialBackoff(ctx, w.retry, func(ctx context.Context) error {
		today := ToDate(w.clock())

		return w.store.WithinTx(ctx, func(ctx context.Context, tx Queries) error {
			if err := guardNoUnpaidFine(ctx, tx, patronID); err != nil {
				return err
			}

			record, found, err := tx.FindActiveBorrow(ctx, patronID, itemID)
			if err != nil {
				return err
			}

			if !found {
				return ErrNoActiveBorrow
			}

			overdueDays := OverdueDays(record.DueDate, today)

			item, found, err := tx.FindItem(ctx, itemID)
			if err != nil {
				return err
			}

			if !found {
				return ErrNotFound
			}

			fine := item.Type.Fine(overdueDays)

			updated, err := tx.MarkReturned(ctx, record.ID, fine)
			if err != nil {
				return err
			}

			if !updated {
				return ErrConcurrencyConflict
			}

			if !w.detachedRestock {
				restocked, incErr := tx.IncrementQuantity(ctx, itemID)
				if incErr != nil {
					return incErr
				}

				if !restocked {
					return ErrNotFound
				}
			}

			result = Return{
				BorrowID:    record.ID,
				PatronID:    patronID,
				ItemID:      itemID,
				OverdueDays: overdueDays,
				Fine:        fine,
				Restocked:   !w.detachedRestock,
			}

			return nil
		})
	})

	if err != nil {
		return Return{}, asStorageError(err)
	}

	if w.detachedRestock {
		restocked, incErr := w.store.IncrementQuantity(ctx, itemID)
		result.Restocked = incErr == nil && restocked
	}

	return result, nil
}

// PayFine applies a payment to the patron's fines, oldest debt first (see AllocatePayment).
//
// Business Rules:
//
//	ERROR: ErrInvalidAmount if amount <= 0, the store is not touched
//	THEN: fully covered rows drop to 0, the first uncovered row is reduced by the remainder
//	NOTE: an amount exceeding the total debt is not rejected, the excess is discarded and reported as Payment.Unapplied
func (w Workflow) PayFine(ctx context.Context, patronID PatronIDString, amount int64) (Payment, error) {
	if amount <= 0 {
		return Payment{}, ErrInvalidAmount
	}

	paymentID, err := uuid.NewV7()
	if err != nil {
		return Payment{}, asStorageError(err)
	}

	payment := Payment{
		ID:       paymentID,
		PatronID: patronID,
		Amount:   amount,
	}

	err = retryWithExponentialBackoff(ctx, w.retry, func(ctx context.Context) error {
		return w.store.WithinTx(ctx, func(ctx context.Context, tx Queries) error {
			fineRows, err := tx.FineRows(ctx, patronID)
			if err != nil {
				return err
			}

			allocation := AllocatePayment(amount, fineRows)

			for _, adjustment := range allocation.Adjustments {
				updated, setErr := tx.SetFine(ctx, adjustment.BorrowID, adjustment.OldFine, adjustment.NewFine)
				if setErr != nil {
					return setErr
				}

				if !updated {
					return ErrConcurrencyConflict
				}
			}

			payment.Applied = allocation.Applied
			payment.Unapplied = allocation.Unapplied
			payment.Adjustments = allocation.Adjustments

			return nil
		})
	})

	if err != nil {
		return Payment{}, asStorageError(err)
	}

	return payment, nil
}

// TotalFine sums the patron's outstanding fines. A patron without any fine has a total of 0.
func (w Workflow) TotalFine(ctx context.Context, patronID PatronIDString) (int64, error) {
	total, err := w.store.SumFine(ctx, patronID)
	if err != nil {
		return 0, asStorageError(err)
	}

	return total, nil
}

// HasUnpaidFine reports whether TotalFine is positive.
func (w Workflow) HasUnpaidFine(ctx context.Context, patronID PatronIDString) (bool, error) {
	total, err := w.TotalFine(ctx, patronID)
	if err != nil {
		return false, err
	}

	return total > 0, nil
}

// OverdueRecords lists all unreturned records whose due date has passed.
func (w Workflow) OverdueRecords(ctx context.Context) ([]BorrowRecord, error) {
	records, err := w.store.UnreturnedRecords(ctx, ToDate(w.clock()))
	if err != nil {
		return nil, asStorageError(err)
	}

	return records, nil
}

// PatronsWithUnpaidFines lists the patrons that currently owe a fine.
func (w Workflow) PatronsWithUnpaidFines(ctx context.Context) ([]PatronIDString, error) {
	patrons, err := w.store.PatronsWithFines(ctx)
	if err != nil {
		return nil, asStorageError(err)
	}

	return patrons, nil
}

// guardNoUnpaidFine enforces the rule that borrowing and returning are blocked while a fine is outstanding.
func guardNoUnpaidFine(ctx context.Context, q Queries, patronID PatronIDString) error {
	total, err := q.SumFine(ctx, patronID)
	if err != nil {
		return err
	}

	if total > 0 {
		return ErrUnpaidFineBlocking
	}

	return nil
}
