package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/enginetest" //nolint:revive
)

func givenWorkflowOn(t *testing.T, wrapper Wrapper, now *time.Time) circulation.Workflow {
	t.Helper()

	workflow, err := circulation.NewWorkflow(
		wrapper.Store(),
		circulation.WithClock(func() time.Time { return *now }),
		circulation.WithRetryOptions(circulation.WithBaseDelay(0)),
	)
	require.NoError(t, err, "error in arranging test data")

	return workflow
}

func Test_Workflow_FullCycleOnSQLite(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	now := day0.Add(10 * time.Hour)
	workflow := givenWorkflowOn(t, wrapper, &now)

	// arrange
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 1})
	GivenItem(t, wrapper, circulation.Item{ID: bookID, Type: circulation.ItemTypeBook, Quantity: 1})

	// act: borrow the only CD
	loan, err := workflow.BorrowItem(ctx, patron, cdID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(0, 0, 7), loan.DueDate)
	assert.Equal(t, 0, ItemQuantity(t, wrapper, cdID))

	_, err = workflow.BorrowItem(ctx, otherPatron, cdID)
	assert.ErrorIs(t, err, circulation.ErrOutOfStock)
	assert.Len(t, Borrows(t, wrapper), 1, "the out of stock borrow must leave no record")

	// act: return three days late
	now = now.AddDate(0, 0, 10)
	ret, err := workflow.ReturnItem(ctx, patron, cdID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, ret.OverdueDays)
	assert.Equal(t, int64(60), ret.Fine)
	assert.True(t, ret.Restocked)
	assert.Equal(t, 1, ItemQuantity(t, wrapper, cdID))

	_, err = workflow.BorrowItem(ctx, patron, bookID)
	assert.ErrorIs(t, err, circulation.ErrUnpaidFineBlocking)

	// act: pay in two installments
	first, err := workflow.PayFine(ctx, patron, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), first.Applied)

	second, err := workflow.PayFine(ctx, patron, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), second.Applied)
	assert.Equal(t, int64(10), second.Unapplied)

	// assert
	total, err := workflow.TotalFine(ctx, patron)
	assert.NoError(t, err)
	assert.Zero(t, total)

	_, err = workflow.BorrowItem(ctx, patron, bookID)
	assert.NoError(t, err)
}

func Test_Workflow_OverdueRecordsAndPatronsWithUnpaidFinesOnSQLite(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	now := day0
	workflow := givenWorkflowOn(t, wrapper, &now)

	// arrange
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 2})
	GivenItem(t, wrapper, circulation.Item{ID: bookID, Type: circulation.ItemTypeBook, Quantity: 2})
	_, err := workflow.BorrowItem(ctx, patron, cdID)
	require.NoError(t, err)
	_, err = workflow.BorrowItem(ctx, otherPatron, bookID)
	require.NoError(t, err)
	now = day0.AddDate(0, 0, 8)
	_, err = workflow.BorrowItem(ctx, otherPatron, cdID)
	require.NoError(t, err)

	// act
	overdue, overdueErr := workflow.OverdueRecords(ctx)

	// assert
	require.NoError(t, overdueErr)
	require.Len(t, overdue, 1, "only the first CD is past its due date")
	assert.Equal(t, patron, overdue[0].PatronID)

	// act
	_, err = workflow.ReturnItem(ctx, patron, cdID)
	require.NoError(t, err)
	patrons, patronsErr := workflow.PatronsWithUnpaidFines(ctx)

	// assert
	assert.NoError(t, patronsErr)
	assert.Equal(t, []string{patron}, patrons)
}

func Test_Workflow_AlreadyBorrowedOnSQLite(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	now := day0
	workflow := givenWorkflowOn(t, wrapper, &now)
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 2})

	_, err := workflow.BorrowItem(ctx, patron, cdID)
	require.NoError(t, err)
	_, err = workflow.BorrowItem(ctx, patron, cdID)

	assert.ErrorIs(t, err, circulation.ErrAlreadyBorrowed)
	assert.Equal(t, 1, ItemQuantity(t, wrapper, cdID))
}
