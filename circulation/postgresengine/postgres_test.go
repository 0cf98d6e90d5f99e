package postgresengine_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/enginetest" //nolint:revive
)

const (
	patron      = "reader@example.com"
	otherPatron = "other@example.com"
	cdID        = int64(100)
	bookID      = int64(200)
)

var day0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func givenOpenBorrow(t *testing.T, store postgresengine.Store, patronID string, itemID int64, dueDate time.Time) {
	t.Helper()

	err := store.InsertBorrow(context.Background(), circulation.BorrowRecord{
		PatronID:   patronID,
		ItemID:     itemID,
		BorrowDate: day0,
		DueDate:    dueDate,
	})
	require.NoError(t, err, "error in arranging test data")
}

func Test_NewStore_NilConnections(t *testing.T) {
	_, err := postgresengine.NewStoreFromPGXPool((*pgxpool.Pool)(nil))
	assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)

	_, err = postgresengine.NewStoreFromSQLDB((*sql.DB)(nil))
	assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)

	_, err = postgresengine.NewStoreFromSQLX((*sqlx.DB)(nil))
	assert.ErrorIs(t, err, postgresengine.ErrNilDatabaseConnection)
}

func Test_NewStore_InvalidOptions(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	testCases := []struct {
		name        string
		option      postgresengine.Option
		expectedErr error
	}{
		{"empty items table name", postgresengine.WithItemsTableName(""), postgresengine.ErrEmptyTableName},
		{"empty borrows table name", postgresengine.WithBorrowsTableName(""), postgresengine.ErrEmptyTableName},
		{"unsupported dialect", postgresengine.WithDialect("mysql"), postgresengine.ErrUnsupportedDialect},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := postgresengine.NewStoreFromSQLDB(db, tc.option)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_Migrate_IsIdempotent(t *testing.T) {
	wrapper := NewSQLite(t)

	err := wrapper.Store().Migrate(context.Background())

	assert.NoError(t, err)
}

func Test_FindItem(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 3})

	// act
	item, found, err := store.FindItem(ctx, cdID)
	_, missingFound, missingErr := store.FindItem(ctx, 999)

	// assert
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 3}, item)
	assert.NoError(t, missingErr)
	assert.False(t, missingFound)
}

func Test_FindItem_ParsesTypeTagCaseInsensitively(t *testing.T) {
	wrapper := NewSQLite(t)
	GivenItemWithRawType(t, wrapper, bookID, " book ", 1)

	item, found, err := wrapper.Store().FindItem(context.Background(), bookID)

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, circulation.ItemTypeBook, item.Type)
}

func Test_FindItem_Error_UnknownItemType(t *testing.T) {
	wrapper := NewSQLite(t)
	GivenItemWithRawType(t, wrapper, 300, "DVD", 1)

	_, _, err := wrapper.Store().FindItem(context.Background(), 300)

	assert.ErrorIs(t, err, circulation.ErrUnknownItemType)
}

func Test_DecrementQuantity_StopsAtZero(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 1})

	// act
	first, firstErr := store.DecrementQuantity(ctx, cdID)
	second, secondErr := store.DecrementQuantity(ctx, cdID)
	missing, missingErr := store.DecrementQuantity(ctx, 999)

	// assert
	assert.NoError(t, firstErr)
	assert.Equal(t, int64(1), first)
	assert.NoError(t, secondErr)
	assert.Equal(t, int64(0), second, "the conditioned update must not touch an empty stock")
	assert.NoError(t, missingErr)
	assert.Equal(t, int64(0), missing)
	assert.Equal(t, 0, ItemQuantity(t, wrapper, cdID))
}

func Test_IncrementQuantity(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 0})

	updated, err := store.IncrementQuantity(ctx, cdID)
	missingUpdated, missingErr := store.IncrementQuantity(ctx, 999)

	assert.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, 1, ItemQuantity(t, wrapper, cdID))
	assert.NoError(t, missingErr)
	assert.False(t, missingUpdated)
}

func Test_InsertBorrow_FindActiveBorrow(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	givenOpenBorrow(t, store, patron, cdID, day0.AddDate(0, 0, 7))

	// act
	record, found, err := store.FindActiveBorrow(ctx, patron, cdID)
	_, otherFound, otherErr := store.FindActiveBorrow(ctx, otherPatron, cdID)

	// assert
	assert.NoError(t, err)
	assert.True(t, found)
	assert.NotZero(t, record.ID)
	assert.Equal(t, patron, record.PatronID)
	assert.Equal(t, cdID, record.ItemID)
	assert.Equal(t, day0, record.BorrowDate)
	assert.Equal(t, day0.AddDate(0, 0, 7), record.DueDate)
	assert.False(t, record.Returned)
	assert.Zero(t, record.Fine)
	assert.NoError(t, otherErr)
	assert.False(t, otherFound)
}

func Test_InsertBorrow_StoresDatesWithoutTimeOfDay(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	err := store.InsertBorrow(ctx, circulation.BorrowRecord{
		PatronID:   patron,
		ItemID:     cdID,
		BorrowDate: day0.Add(15 * time.Hour),
		DueDate:    day0.AddDate(0, 0, 7).Add(23 * time.Hour),
	})
	require.NoError(t, err)

	records := Borrows(t, wrapper)
	require.Len(t, records, 1)
	assert.Equal(t, day0, records[0].BorrowDate)
	assert.Equal(t, day0.AddDate(0, 0, 7), records[0].DueDate)
}

func Test_InsertBorrow_Error_SecondActiveBorrowViolatesUniqueIndex(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	givenOpenBorrow(t, store, patron, cdID, day0.AddDate(0, 0, 7))

	// act
	err := store.InsertBorrow(ctx, circulation.BorrowRecord{
		PatronID:   patron,
		ItemID:     cdID,
		BorrowDate: day0,
		DueDate:    day0.AddDate(0, 0, 7),
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrAlreadyBorrowed)
	assert.ErrorIs(t, err, circulation.ErrStorage)
	assert.Len(t, Borrows(t, wrapper), 1)
}

func Test_InsertBorrow_AfterReturnIsAllowed(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	givenOpenBorrow(t, store, patron, cdID, day0.AddDate(0, 0, 7))
	record, _, err := store.FindActiveBorrow(ctx, patron, cdID)
	require.NoError(t, err)
	_, err = store.MarkReturned(ctx, record.ID, 0)
	require.NoError(t, err)

	err = store.InsertBorrow(ctx, circulation.BorrowRecord{PatronID: patron, ItemID: cdID, BorrowDate: day0, DueDate: day0})

	assert.NoError(t, err)
	assert.Len(t, Borrows(t, wrapper), 2)
}

func Test_MarkReturned_IsGuardedByReturnedFalse(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	givenOpenBorrow(t, store, patron, cdID, day0.AddDate(0, 0, 7))
	record, _, err := store.FindActiveBorrow(ctx, patron, cdID)
	require.NoError(t, err)

	// act
	first, firstErr := store.MarkReturned(ctx, record.ID, 40)
	second, secondErr := store.MarkReturned(ctx, record.ID, 80)

	// assert
	assert.NoError(t, firstErr)
	assert.True(t, first)
	assert.NoError(t, secondErr)
	assert.False(t, second)

	records := Borrows(t, wrapper)
	require.Len(t, records, 1)
	assert.True(t, records[0].Returned)
	assert.Equal(t, int64(40), records[0].Fine, "the second update must not overwrite the fine")
}

func Test_FineRows_SetFine_SumFine(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: patron, ItemID: cdID, BorrowDate: day0, DueDate: day0, Fine: 30})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: patron, ItemID: bookID, BorrowDate: day0, DueDate: day0, Fine: 0})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: patron, ItemID: bookID, BorrowDate: day0, DueDate: day0, Fine: 20})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: otherPatron, ItemID: cdID, BorrowDate: day0, DueDate: day0, Fine: 99})

	// act
	rows, rowsErr := store.FineRows(ctx, patron)
	total, totalErr := store.SumFine(ctx, patron)

	// assert
	require.NoError(t, rowsErr)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(30), rows[0].Fine)
	assert.Equal(t, int64(20), rows[1].Fine)
	assert.Less(t, rows[0].ID, rows[1].ID, "fine rows must be ordered by ascending id")
	assert.NoError(t, totalErr)
	assert.Equal(t, int64(50), total)

	// act
	stale, staleErr := store.SetFine(ctx, rows[0].ID, 31, 0)
	updated, updatedErr := store.SetFine(ctx, rows[0].ID, 30, 0)
	totalAfter, totalAfterErr := store.SumFine(ctx, patron)

	// assert
	assert.NoError(t, staleErr)
	assert.False(t, stale, "a stale expected fine must not match")
	assert.NoError(t, updatedErr)
	assert.True(t, updated)
	assert.NoError(t, totalAfterErr)
	assert.Equal(t, int64(20), totalAfter)
}

func Test_SumFine_IsZeroWithoutRecords(t *testing.T) {
	wrapper := NewSQLite(t)

	total, err := wrapper.Store().SumFine(context.Background(), patron)

	assert.NoError(t, err)
	assert.Zero(t, total)
}

func Test_UnreturnedRecords_OnlyDueBeforeCutoff(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	store := wrapper.Store()

	// arrange
	givenOpenBorrow(t, store, patron, cdID, day0.AddDate(0, 0, 3))
	givenOpenBorrow(t, store, patron, bookID, day0.AddDate(0, 0, 1))
	givenOpenBorrow(t, store, otherPatron, cdID, day0.AddDate(0, 0, 5))
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{
		PatronID: otherPatron, ItemID: bookID, BorrowDate: day0, DueDate: day0, Fine: 10,
	})

	// act
	records, err := store.UnreturnedRecords(ctx, day0.AddDate(0, 0, 5))

	// assert
	require.NoError(t, err)
	require.Len(t, records, 2, "due on the cutoff day is not overdue yet and returned records never are")
	assert.Equal(t, bookID, records[0].ItemID, "records must be ordered by due date")
	assert.Equal(t, cdID, records[1].ItemID)
	for _, record := range records {
		assert.False(t, record.Returned)
	}
}

func Test_PatronsWithFines_DistinctAndSorted(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)

	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: "zoe@example.com", ItemID: cdID, BorrowDate: day0, DueDate: day0, Fine: 10})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: "amy@example.com", ItemID: cdID, BorrowDate: day0, DueDate: day0, Fine: 20})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: "amy@example.com", ItemID: bookID, BorrowDate: day0, DueDate: day0, Fine: 30})
	GivenReturnedBorrowWithFine(t, wrapper, circulation.BorrowRecord{PatronID: "bob@example.com", ItemID: cdID, BorrowDate: day0, DueDate: day0, Fine: 0})

	patrons, err := wrapper.Store().PatronsWithFines(ctx)

	assert.NoError(t, err)
	assert.Equal(t, []string{"amy@example.com", "zoe@example.com"}, patrons)
}

func Test_WithinTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 2})

	err := wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
		_, err := tx.DecrementQuantity(ctx, cdID)
		return err
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, ItemQuantity(t, wrapper, cdID))
}

func Test_WithinTx_RollsBackOnError(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t)
	errFromFn := errors.New("something went wrong")

	// arrange
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 2})

	// act
	err := wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
		if err := tx.InsertBorrow(ctx, circulation.BorrowRecord{PatronID: patron, ItemID: cdID, BorrowDate: day0, DueDate: day0}); err != nil {
			return err
		}

		if _, err := tx.DecrementQuantity(ctx, cdID); err != nil {
			return err
		}

		return errFromFn
	})

	// assert
	assert.ErrorIs(t, err, errFromFn)
	assert.Equal(t, 2, ItemQuantity(t, wrapper, cdID))
	assert.Empty(t, Borrows(t, wrapper))
}

func Test_WithinTx_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	wrapper := NewSQLite(t)
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 2})

	assert.PanicsWithValue(t, "boom", func() {
		_ = wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
			_, _ = tx.DecrementQuantity(ctx, cdID)
			panic("boom")
		})
	})

	assert.Equal(t, 2, ItemQuantity(t, wrapper, cdID))
}

func Test_WithinTx_Error_CanceledContext(t *testing.T) {
	wrapper := NewSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wrapper.Store().WithinTx(ctx, func(context.Context, circulation.Queries) error { return nil })

	assert.ErrorIs(t, err, circulation.ErrStorage)
	assert.ErrorIs(t, err, postgresengine.ErrBeginTxFailed)
}

func Test_Store_WithCustomTableNames(t *testing.T) {
	// setup
	ctx := context.Background()
	wrapper := NewSQLite(t,
		postgresengine.WithItemsTableName("lib_items"),
		postgresengine.WithBorrowsTableName("lib_borrows"),
	)
	store := wrapper.Store()

	// act
	givenOpenBorrow(t, store, patron, cdID, day0)
	record, found, err := store.FindActiveBorrow(ctx, patron, cdID)

	// assert
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, patron, record.PatronID)
}

func Test_Query_Error_WrapsStorageError(t *testing.T) {
	wrapper := NewSQLite(t)
	wrapper.Close()

	_, _, err := wrapper.Store().FindItem(context.Background(), cdID)

	assert.ErrorIs(t, err, circulation.ErrStorage)
	assert.ErrorIs(t, err, postgresengine.ErrQueryingFailed)
}

func Test_Exec_Error_WrapsStorageError(t *testing.T) {
	wrapper := NewSQLite(t)
	wrapper.Close()

	_, err := wrapper.Store().DecrementQuantity(context.Background(), cdID)

	assert.ErrorIs(t, err, circulation.ErrStorage)
	assert.ErrorIs(t, err, postgresengine.ErrExecutingFailed)
}
