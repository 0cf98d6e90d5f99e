package circulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

func Test_AllocatePayment(t *testing.T) {
	fineRows := []circulation.BorrowRecord{
		{ID: 1, Fine: 30},
		{ID: 2, Fine: 20},
	}

	tests := []struct {
		name                string
		amount              int64
		expectedAdjustments []circulation.FineAdjustment
		expectedApplied     int64
		expectedUnapplied   int64
	}{
		{
			name:   "exact_total_pays_everything",
			amount: 50,
			expectedAdjustments: []circulation.FineAdjustment{
				{BorrowID: 1, OldFine: 30, NewFine: 0},
				{BorrowID: 2, OldFine: 20, NewFine: 0},
			},
			expectedApplied: 50,
		},
		{
			name:   "partial_payment_reduces_oldest_row_only",
			amount: 10,
			expectedAdjustments: []circulation.FineAdjustment{
				{BorrowID: 1, OldFine: 30, NewFine: 20},
			},
			expectedApplied: 10,
		},
		{
			name:   "payoff_then_partial",
			amount: 35,
			expectedAdjustments: []circulation.FineAdjustment{
				{BorrowID: 1, OldFine: 30, NewFine: 0},
				{BorrowID: 2, OldFine: 20, NewFine: 15},
			},
			expectedApplied: 35,
		},
		{
			name:   "overpayment_is_reported_as_unapplied",
			amount: 100,
			expectedAdjustments: []circulation.FineAdjustment{
				{BorrowID: 1, OldFine: 30, NewFine: 0},
				{BorrowID: 2, OldFine: 20, NewFine: 0},
			},
			expectedApplied:   50,
			expectedUnapplied: 50,
		},
		{
			name:                "non_positive_amount_changes_nothing",
			amount:              0,
			expectedAdjustments: []circulation.FineAdjustment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act
			allocation := circulation.AllocatePayment(tt.amount, fineRows)

			// assert
			assert.Equal(t, tt.expectedAdjustments, allocation.Adjustments)
			assert.Equal(t, tt.expectedApplied, allocation.Applied)
			assert.Equal(t, tt.expectedUnapplied, allocation.Unapplied)
		})
	}
}

func Test_AllocatePayment_Success_SkipsRowsWithoutFine(t *testing.T) {
	fineRows := []circulation.BorrowRecord{
		{ID: 1, Fine: 0},
		{ID: 2, Fine: 40},
	}

	allocation := circulation.AllocatePayment(40, fineRows)

	assert.Equal(t, []circulation.FineAdjustment{{BorrowID: 2, OldFine: 40, NewFine: 0}}, allocation.Adjustments)
	assert.Equal(t, int64(40), allocation.Adjustments[0].Paid())
}

func Test_AllocatePayment_Success_LeavesInputUntouched(t *testing.T) {
	fineRows := []circulation.BorrowRecord{{ID: 7, Fine: 30}}

	_ = circulation.AllocatePayment(30, fineRows)

	assert.Equal(t, int64(30), fineRows[0].Fine)
}

func Test_AllocatePayment_Success_AppliedPlusUnappliedEqualsAmount(t *testing.T) {
	fineRows := []circulation.BorrowRecord{{ID: 1, Fine: 13}, {ID: 2, Fine: 7}, {ID: 3, Fine: 21}}

	for amount := int64(1); amount <= 60; amount++ {
		allocation := circulation.AllocatePayment(amount, fineRows)

		var paid int64
		for _, adjustment := range allocation.Adjustments {
			paid += adjustment.Paid()
		}

		assert.Equal(t, allocation.Applied, paid)
		assert.Equal(t, amount, allocation.Applied+allocation.Unapplied)
	}
}
