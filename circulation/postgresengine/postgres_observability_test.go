package postgresengine_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/enginetest" //nolint:revive
	"github.com/AntonStoeckl/library-circulation-go/testutil/spies"
)

func Test_Observability_WithLogger_LogsStatementsWithDuration(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := spies.NewLogHandlerSpy(false)
	wrapper := NewSQLite(t, postgresengine.WithLogger(slog.New(logHandler)))
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 1})
	logHandler.Reset()

	// act
	_, _, err := wrapper.Store().FindItem(ctx, cdID)

	// assert
	assert.NoError(t, err)
	assert.Equal(t, 1, logHandler.RecordCount(), "a single query should log exactly one sql statement")
	assert.True(t, logHandler.HasLogWithAttr(slog.LevelDebug, "executed sql for: find_item", "duration_ms"))
	assert.True(t, logHandler.HasLogWithAttr(slog.LevelDebug, "executed sql for: find_item", "query"))
}

func Test_Observability_WithLogger_LogsCommittedTransaction(t *testing.T) {
	ctx := context.Background()
	logHandler := spies.NewLogHandlerSpy(false)
	wrapper := NewSQLite(t, postgresengine.WithLogger(slog.New(logHandler)))
	logHandler.Reset()

	err := wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
		_, err := tx.SumFine(ctx, patron)
		return err
	})

	assert.NoError(t, err)
	assert.True(t, logHandler.HasLog(slog.LevelDebug, "executed sql for: sum_fine"))
	assert.True(t, logHandler.HasLogWithAttr(slog.LevelInfo, "circulation store operation: transaction committed", "duration_ms"))
}

func Test_Observability_WithLogger_LogsRolledBackTransaction(t *testing.T) {
	ctx := context.Background()
	logHandler := spies.NewLogHandlerSpy(false)
	wrapper := NewSQLite(t, postgresengine.WithLogger(slog.New(logHandler)))
	logHandler.Reset()

	err := wrapper.Store().WithinTx(ctx, func(context.Context, circulation.Queries) error {
		return errors.New("abort")
	})

	assert.Error(t, err)
	assert.True(t, logHandler.HasLog(slog.LevelDebug, "transaction rolled back"))
	assert.False(t, logHandler.HasLog(slog.LevelInfo, "circulation store operation: transaction committed"))
}

func Test_Observability_WithLogger_LogsGuardedUpdateMiss(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := spies.NewLogHandlerSpy(false)
	wrapper := NewSQLite(t, postgresengine.WithLogger(slog.New(logHandler)))
	store := wrapper.Store()

	// arrange
	givenOpenBorrow(t, store, patron, cdID, day0)
	record, _, err := store.FindActiveBorrow(ctx, patron, cdID)
	require.NoError(t, err)
	_, err = store.MarkReturned(ctx, record.ID, 0)
	require.NoError(t, err)
	logHandler.Reset()

	// act
	updated, err := store.MarkReturned(ctx, record.ID, 0)

	// assert
	assert.NoError(t, err)
	assert.False(t, updated)

	action, found := logHandler.AttrValue(slog.LevelInfo, "circulation store operation: guarded update affected no rows", "action")
	assert.True(t, found)
	assert.Equal(t, "mark_returned", action.String())
}

func Test_Observability_WithLogger_LogsErrors(t *testing.T) {
	logHandler := spies.NewLogHandlerSpy(false)
	wrapper := NewSQLite(t, postgresengine.WithLogger(slog.New(logHandler)))
	wrapper.Close()
	logHandler.Reset()

	_, err := wrapper.Store().SumFine(context.Background(), patron)

	assert.Error(t, err)
	assert.True(t, logHandler.HasLogWithAttr(slog.LevelError, "database query execution failed", "error"))
}

func Test_Observability_WithContextualLogger_ReceivesTheCallersContext(t *testing.T) {
	// setup
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-42")
	contextualLogger := spies.NewContextualLoggerSpy()
	wrapper := NewSQLite(t, postgresengine.WithContextualLogger(contextualLogger))

	// act
	_, err := wrapper.Store().PatronsWithFines(ctx)

	// assert
	assert.NoError(t, err)
	assert.True(t, contextualLogger.HasLog("debug", "executed sql for: patrons_with_fines"))

	records := contextualLogger.Records("debug")
	require.NotEmpty(t, records)
	assert.Equal(t, "request-42", records[len(records)-1].Context.Value(ctxKey{}))
}

func Test_Observability_WithLoggerAndContextualLogger_BothReceiveLogs(t *testing.T) {
	logHandler := spies.NewLogHandlerSpy(false)
	contextualLogger := spies.NewContextualLoggerSpy()
	wrapper := NewSQLite(t,
		postgresengine.WithLogger(slog.New(logHandler)),
		postgresengine.WithContextualLogger(contextualLogger),
	)

	_, err := wrapper.Store().SumFine(context.Background(), patron)

	assert.NoError(t, err)
	assert.True(t, logHandler.HasLog(slog.LevelDebug, "executed sql for: sum_fine"))
	assert.True(t, contextualLogger.HasLog("debug", "executed sql for: sum_fine"))
}

func Test_Observability_WithMetrics_RecordsStatementAndTransactionDurations(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics := spies.NewMetricsCollectorSpy()
	wrapper := NewSQLite(t, postgresengine.WithMetrics(metrics))
	GivenItem(t, wrapper, circulation.Item{ID: cdID, Type: circulation.ItemTypeCD, Quantity: 1})
	metrics.Reset()

	// act
	err := wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
		_, err := tx.DecrementQuantity(ctx, cdID)
		return err
	})

	// assert
	assert.NoError(t, err)
	assert.True(t, metrics.HasRecord("circulation_sql_statement_duration_seconds", map[string]string{
		"operation": "decrement_quantity",
		"status":    "success",
	}))
	assert.True(t, metrics.HasRecord("circulation_sql_transaction_duration_seconds", map[string]string{
		"operation": "transaction",
		"status":    "success",
	}))
}

func Test_Observability_WithMetrics_RecordsRollbackAndGuardMiss(t *testing.T) {
	// setup
	ctx := context.Background()
	metrics := spies.NewMetricsCollectorSpy()
	wrapper := NewSQLite(t, postgresengine.WithMetrics(metrics))
	metrics.Reset()

	// act
	err := wrapper.Store().WithinTx(ctx, func(ctx context.Context, tx circulation.Queries) error {
		updated, err := tx.SetFine(ctx, 12345, 10, 0)
		if err != nil {
			return err
		}

		if !updated {
			return circulation.ErrConcurrencyConflict
		}

		return nil
	})

	// assert
	assert.ErrorIs(t, err, circulation.ErrConcurrencyConflict)
	assert.True(t, metrics.HasRecord("circulation_sql_guarded_update_misses_total", map[string]string{"operation": "set_fine"}))
	assert.True(t, metrics.HasRecord("circulation_sql_transaction_duration_seconds", map[string]string{"status": "rolled_back"}))
}

func Test_Observability_WithMetrics_RecordsErrors(t *testing.T) {
	metrics := spies.NewMetricsCollectorSpy()
	wrapper := NewSQLite(t, postgresengine.WithMetrics(metrics))
	wrapper.Close()

	_, err := wrapper.Store().IncrementQuantity(context.Background(), cdID)

	assert.Error(t, err)
	assert.True(t, metrics.HasRecord("circulation_sql_errors_total", map[string]string{
		"operation":  "increment_quantity",
		"status":     "error",
		"error_type": "exec",
	}))
}

func Test_Observability_WithContextualMetrics_UsesContextAwareMethods(t *testing.T) {
	metrics := spies.NewContextualMetricsCollectorSpy()
	wrapper := NewSQLite(t, postgresengine.WithMetrics(metrics))
	metrics.Reset()

	_, err := wrapper.Store().SumFine(context.Background(), patron)

	assert.NoError(t, err)

	records := metrics.Records("circulation_sql_statement_duration_seconds")
	require.Len(t, records, 1)
	assert.True(t, records[0].Contextual)
}
