package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// sqlBuilder is implemented by all goqu datasets.
type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

// session runs the circulation queries on the pool or inside one transaction.
type session struct {
	store Store
	exec  adapters.Executor
}

var _ circulation.Queries = session{}

var borrowColumns = []any{colID, colPatronID, colItemID, colBorrowDate, colDueDate, colReturned, colFine}

func (ss session) FindItem(ctx context.Context, itemID circulation.ItemIDInt64) (circulation.Item, bool, error) {
	stmt := ss.store.builder().
		From(ss.store.itemsTableName).
		Prepared(true).
		Select(colID, colItemType, colQuantity).
		Where(goqu.C(colID).Eq(itemID))

	rows, err := ss.executeQuery(ctx, actionFindItem, stmt)
	if err != nil {
		return circulation.Item{}, false, err
	}
	defer ss.closeRows(ctx, rows)

	if !rows.Next() {
		return circulation.Item{}, false, ss.rowsErr(ctx, rows)
	}

	var item circulation.Item
	var itemTypeTag string

	if scanErr := rows.Scan(&item.ID, &itemTypeTag, &item.Quantity); scanErr != nil {
		return circulation.Item{}, false, ss.scanFailed(ctx, scanErr)
	}

	itemType, parseErr := circulation.ParseItemType(itemTypeTag)
	if parseErr != nil {
		return circulation.Item{}, false, parseErr
	}

	item.Type = itemType

	return item, true, nil
}

func (ss session) DecrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (int64, error) {
	stmt := ss.store.builder().
		Update(ss.store.itemsTableName).
		Prepared(true).
		Set(goqu.Record{colQuantity: goqu.L(exprDecrementQuantity)}).
		Where(
			goqu.C(colID).Eq(itemID),
			goqu.C(colQuantity).Gt(0),
		)

	return ss.executeStatement(ctx, actionDecrementQuantity, stmt)
}

func (ss session) IncrementQuantity(ctx context.Context, itemID circulation.ItemIDInt64) (bool, error) {
	stmt := ss.store.builder().
		Update(ss.store.itemsTableName).
		Prepared(true).
		Set(goqu.Record{colQuantity: goqu.L(exprIncrementQuantity)}).
		Where(goqu.C(colID).Eq(itemID))

	rowsAffected, err := ss.executeStatement(ctx, actionIncrementQuantity, stmt)
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (ss session) InsertBorrow(ctx context.Context, record circulation.BorrowRecord) error {
	stmt := ss.store.builder().
		Insert(ss.store.borrowsTableName).
		Prepared(true).
		Rows(goqu.Record{
			colPatronID:   record.PatronID,
			colItemID:     record.ItemID,
			colBorrowDate: circulation.ToDate(record.BorrowDate),
			colDueDate:    circulation.ToDate(record.DueDate),
			colReturned:   false,
			colFine:       0,
		})

	_, err := ss.executeStatement(ctx, actionInsertBorrow, stmt)
	if err != nil && isUniqueViolation(err) {
		return errors.Join(circulation.ErrAlreadyBorrowed, err)
	}

	return err
}

func (ss session) FindActiveBorrow(
	ctx context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.BorrowRecord, bool, error) {

	stmt := ss.store.builder().
		From(ss.store.borrowsTableName).
		Prepared(true).
		Select(borrowColumns...).
		Where(
			goqu.C(colPatronID).Eq(patronID),
			goqu.C(colItemID).Eq(itemID),
			goqu.C(colReturned).IsFalse(),
		).
		Order(goqu.C(colID).Desc()).
		Limit(1)

	records, err := ss.queryBorrowRecords(ctx, actionFindActiveBorrow, stmt)
	if err != nil || len(records) == 0 {
		return circulation.BorrowRecord{}, false, err
	}

	return records[0], true, nil
}

func (ss session) MarkReturned(ctx context.Context, borrowID circulation.BorrowIDInt64, fine int64) (bool, error) {
	stmt := ss.store.builder().
		Update(ss.store.borrowsTableName).
		Prepared(true).
		Set(goqu.Record{colReturned: true, colFine: fine}).
		Where(
			goqu.C(colID).Eq(borrowID),
			goqu.C(colReturned).IsFalse(),
		)

	rowsAffected, err := ss.executeStatement(ctx, actionMarkReturned, stmt)
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		ss.store.guardedUpdateMissed(ctx, actionMarkReturned, borrowID)
		return false, nil
	}

	return true, nil
}

func (ss session) FineRows(ctx context.Context, patronID circulation.PatronIDString) ([]circulation.BorrowRecord, error) {
	stmt := ss.store.builder().
		From(ss.store.borrowsTableName).
		Prepared(true).
		Select(borrowColumns...).
		Where(
			goqu.C(colPatronID).Eq(patronID),
			goqu.C(colFine).Gt(0),
		).
		Order(goqu.C(colID).Asc())

	return ss.queryBorrowRecords(ctx, actionFineRows, stmt)
}

func (ss session) SetFine(ctx context.Context, borrowID circulation.BorrowIDInt64, expectedFine, newFine int64) (bool, error) {
	stmt := ss.store.builder().
		Update(ss.store.borrowsTableName).
		Prepared(true).
		Set(goqu.Record{colFine: newFine}).
		Where(
			goqu.C(colID).Eq(borrowID),
			goqu.C(colFine).Eq(expectedFine),
		)

	rowsAffected, err := ss.executeStatement(ctx, actionSetFine, stmt)
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		ss.store.guardedUpdateMissed(ctx, actionSetFine, borrowID)
		return false, nil
	}

	return true, nil
}

func (ss session) SumFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error) {
	stmt := ss.store.builder().
		From(ss.store.borrowsTableName).
		Prepared(true).
		Select(goqu.L(exprSumFine)).
		Where(
			goqu.C(colPatronID).Eq(patronID),
			goqu.C(colFine).Gt(0),
		)

	rows, err := ss.executeQuery(ctx, actionSumFine, stmt)
	if err != nil {
		return 0, err
	}
	defer ss.closeRows(ctx, rows)

	var total int64

	if rows.Next() {
		if scanErr := rows.Scan(&total); scanErr != nil {
			return 0, ss.scanFailed(ctx, scanErr)
		}
	}

	if rowsErr := ss.rowsErr(ctx, rows); rowsErr != nil {
		return 0, rowsErr
	}

	return total, nil
}

// UnreturnedRecords selects all open records and keeps those due before dueBefore.
// The date comparison happens here, so it doesn't depend on how a dialect stores dates.
func (ss session) UnreturnedRecords(ctx context.Context, dueBefore time.Time) ([]circulation.BorrowRecord, error) {
	stmt := ss.store.builder().
		From(ss.store.borrowsTableName).
		Prepared(true).
		Select(borrowColumns...).
		Where(goqu.C(colReturned).IsFalse()).
		Order(goqu.C(colDueDate).Asc(), goqu.C(colID).Asc())

	records, err := ss.queryBorrowRecords(ctx, actionUnreturnedRecords, stmt)
	if err != nil {
		return nil, err
	}

	cutoff := circulation.ToDate(dueBefore)
	overdue := make([]circulation.BorrowRecord, 0, len(records))

	for _, record := range records {
		if record.DueDate.Before(cutoff) {
			overdue = append(overdue, record)
		}
	}

	return overdue, nil
}

func (ss session) PatronsWithFines(ctx context.Context) ([]circulation.PatronIDString, error) {
	stmt := ss.store.builder().
		From(ss.store.borrowsTableName).
		Prepared(true).
		Select(colPatronID).
		Where(goqu.C(colFine).Gt(0)).
		GroupBy(colPatronID).
		Order(goqu.C(colPatronID).Asc())

	rows, err := ss.executeQuery(ctx, actionPatronsWithFines, stmt)
	if err != nil {
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	patrons := make([]circulation.PatronIDString, 0)

	for rows.Next() {
		var patronID string
		if scanErr := rows.Scan(&patronID); scanErr != nil {
			return nil, ss.scanFailed(ctx, scanErr)
		}

		patrons = append(patrons, patronID)
	}

	if rowsErr := ss.rowsErr(ctx, rows); rowsErr != nil {
		return nil, rowsErr
	}

	return patrons, nil
}

func (ss session) queryBorrowRecords(ctx context.Context, action string, stmt sqlBuilder) ([]circulation.BorrowRecord, error) {
	rows, err := ss.executeQuery(ctx, action, stmt)
	if err != nil {
		return nil, err
	}
	defer ss.closeRows(ctx, rows)

	records := make([]circulation.BorrowRecord, 0)

	for rows.Next() {
		var record circulation.BorrowRecord

		scanErr := rows.Scan(
			&record.ID,
			&record.PatronID,
			&record.ItemID,
			&record.BorrowDate,
			&record.DueDate,
			&record.Returned,
			&record.Fine,
		)
		if scanErr != nil {
			return nil, ss.scanFailed(ctx, scanErr)
		}

		record.BorrowDate = circulation.ToDate(record.BorrowDate)
		record.DueDate = circulation.ToDate(record.DueDate)
		records = append(records, record)
	}

	if rowsErr := ss.rowsErr(ctx, rows); rowsErr != nil {
		return nil, rowsErr
	}

	return records, nil
}

// executeQuery builds and runs a query and returns the open rows.
func (ss session) executeQuery(ctx context.Context, action string, stmt sqlBuilder) (adapters.DBRows, error) {
	sqlQuery, args, buildErr := stmt.ToSQL()
	if buildErr != nil {
		ss.store.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrAction, action)
		return nil, errors.Join(circulation.ErrStorage, ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	rows, queryErr := ss.exec.Query(ctx, sqlQuery, args...)
	duration := time.Since(start)
	ss.store.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if queryErr != nil {
		ss.store.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		ss.store.recordErrorMetrics(ctx, action, errorTypeQuery)

		return nil, errors.Join(circulation.ErrStorage, ErrQueryingFailed, queryErr)
	}

	ss.store.recordDurationMetrics(ctx, metricStatementDuration, duration, action, statusSuccess)

	return rows, nil
}

// executeStatement builds and runs an insert or update and returns the number of affected rows.
func (ss session) executeStatement(ctx context.Context, action string, stmt sqlBuilder) (int64, error) {
	sqlQuery, args, buildErr := stmt.ToSQL()
	if buildErr != nil {
		ss.store.logError(ctx, logMsgBuildQueryFailed, buildErr, logAttrAction, action)
		return 0, errors.Join(circulation.ErrStorage, ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	result, execErr := ss.exec.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	ss.store.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if execErr != nil {
		ss.store.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		ss.store.recordErrorMetrics(ctx, action, errorTypeExec)

		return 0, errors.Join(circulation.ErrStorage, ErrExecutingFailed, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		ss.store.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		ss.store.recordErrorMetrics(ctx, action, errorTypeRowsAffected)

		return 0, errors.Join(circulation.ErrStorage, ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	ss.store.recordDurationMetrics(ctx, metricStatementDuration, duration, action, statusSuccess)

	return rowsAffected, nil
}

func (ss session) scanFailed(ctx context.Context, scanErr error) error {
	ss.store.logError(ctx, logMsgScanRowFailed, scanErr)
	ss.store.recordErrorMetrics(ctx, actionScan, errorTypeScan)

	return errors.Join(circulation.ErrStorage, ErrScanningDBRowFailed, scanErr)
}

func (ss session) rowsErr(ctx context.Context, rows adapters.DBRows) error {
	if err := rows.Err(); err != nil {
		ss.store.logError(ctx, logMsgDBQueryFailed, err)
		ss.store.recordErrorMetrics(ctx, actionScan, errorTypeQuery)

		return errors.Join(circulation.ErrStorage, ErrQueryingFailed, err)
	}

	return nil
}

// closeRows safely closes database rows and logs any errors.
func (ss session) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		ss.store.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}
