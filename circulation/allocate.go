package circulation

// FineAdjustment describes how a payment changes the fine of one BorrowRecord.
type FineAdjustment struct {
	BorrowID BorrowIDInt64
	OldFine  int64
	NewFine  int64
}

// Paid is the part of the payment that went into this record.
func (a FineAdjustment) Paid() int64 {
	return a.OldFine - a.NewFine
}

// Allocation is the result of AllocatePayment.
type Allocation struct {
	Adjustments []FineAdjustment
	Applied     int64
	Unapplied   int64
}

// AllocatePayment distributes amount over fineRows, oldest debt first.
//
// fineRows must be the patron's records with a positive fine, ordered by ascending ID.
// Each row is paid off completely while the remaining amount covers it. The first row that
// can't be covered is reduced by the remainder, and allocation stops there.
// An amount that exceeds the total debt is reported as Unapplied; nothing records it.
//
// This is a pure function, it never touches the rows it's given.
func AllocatePayment(amount int64, fineRows []BorrowRecord) Allocation {
	allocation := Allocation{Adjustments: make([]FineAdjustment, 0, len(fineRows))}
	if amount <= 0 {
		return allocation
	}

	remaining := amount

	for _, row := range fineRows {
		if remaining == 0 {
			break
		}

		if row.Fine <= 0 {
			continue
		}

		if remaining >= row.Fine {
			allocation.Adjustments = append(allocation.Adjustments, FineAdjustment{BorrowID: row.ID, OldFine: row.Fine, NewFine: 0})
			remaining -= row.Fine

			continue
		}

		allocation.Adjustments = append(allocation.Adjustments, FineAdjustment{BorrowID: row.ID, OldFine: row.Fine, NewFine: row.Fine - remaining})
		remaining = 0
	}

	allocation.Applied = amount - remaining
	allocation.Unapplied = remaining

	return allocation
}
