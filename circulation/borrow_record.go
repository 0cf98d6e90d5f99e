package circulation

import (
	"time"

	"github.com/google/uuid"
)

// PatronIDString identifies a patron, e.g. by e-mail address.
type PatronIDString = string

// ItemIDInt64 identifies an item in the catalog.
type ItemIDInt64 = int64

// BorrowIDInt64 identifies a BorrowRecord. It is assigned by the store, 0 means not yet persisted.
type BorrowIDInt64 = int64

// BorrowRecord is one checkout of an item by a patron.
// It is mutated only when the item is returned (Returned, Fine) and when fines are paid (Fine).
type BorrowRecord struct {
	ID         BorrowIDInt64
	PatronID   PatronIDString
	ItemID     ItemIDInt64
	BorrowDate time.Time
	DueDate    time.Time
	Returned   bool
	Fine       int64
}

// IsOverdueAt reports whether the record is unreturned and its due date lies before today.
func (r BorrowRecord) IsOverdueAt(today time.Time) bool {
	return !r.Returned && ToDate(r.DueDate).Before(ToDate(today))
}

// Item is the part of a catalog item the workflow cares about.
type Item struct {
	ID       ItemIDInt64
	Type     ItemType
	Quantity int
}

// Loan is the outcome of a successful BorrowItem.
type Loan struct {
	PatronID   PatronIDString
	ItemID     ItemIDInt64
	ItemType   ItemType
	BorrowDate time.Time
	DueDate    time.Time
}

// Return is the outcome of a successful ReturnItem.
type Return struct {
	BorrowID    BorrowIDInt64
	PatronID    PatronIDString
	ItemID      ItemIDInt64
	OverdueDays int
	Fine        int64

	// Restocked is false only with WithDetachedRestock, when the quantity increment after commit failed.
	Restocked bool
}

// Payment is the outcome of PayFine.
type Payment struct {
	ID          uuid.UUID
	PatronID    PatronIDString
	Amount      int64
	Applied     int64
	Unapplied   int64
	Adjustments []FineAdjustment
}
