package postgresengine

import (
	"context"
	"math"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	metricStatementDuration   = "circulation_sql_statement_duration_seconds"
	metricTxDuration          = "circulation_sql_transaction_duration_seconds"
	metricDatabaseErrors      = "circulation_sql_errors_total"
	metricGuardedUpdateMisses = "circulation_sql_guarded_update_misses_total"
	labelOperation            = "operation"
	labelStatus               = "status"
	labelErrorType            = "error_type"
	statusSuccess             = "success"
	statusRolledBack          = "rolled_back"
	statusError               = "error"
	errorTypeQuery            = "query"
	errorTypeExec             = "exec"
	errorTypeRowsAffected     = "rows_affected"
	errorTypeScan             = "scan"
	actionScan                = "scan"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if a logger is configured.
func (s Store) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {

	s.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, s.toMilliseconds(duration), logAttrQuery, sqlQuery)
}

// logOperation logs operational information at info level if a logger is configured.
func (s Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

func (s Store) logDebug(ctx context.Context, message string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(message, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, message, args...)
	}
}

func (s Store) logWarn(ctx context.Context, message string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(message, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s Store) logError(
	ctx context.Context,
	message string,
	err error,
	args ...any,
) {

	if s.logger == nil && s.contextualLogger == nil {
		return
	}

	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func (s Store) toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// guardedUpdateMissed reports an update whose guard no longer matched, usually a concurrent writer.
func (s Store) guardedUpdateMissed(ctx context.Context, action string, borrowID circulation.BorrowIDInt64) {
	s.logOperation(ctx, logMsgGuardedUpdateMissed, logAttrAction, action, logAttrBorrowID, borrowID)

	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelOperation: action}

	if contextualCollector, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricGuardedUpdateMisses, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricGuardedUpdateMisses, labels)
	}
}

// recordErrorMetrics records error metrics with context if the collector supports it.
func (s Store) recordErrorMetrics(ctx context.Context, operation, errorType string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: operation,
		labelStatus:    statusError,
		labelErrorType: errorType,
	}

	// use the context-aware method if available
	if contextualCollector, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
	} else {
		s.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
	}
}

// recordDurationMetrics records duration metrics with context if the collector supports it.
func (s Store) recordDurationMetrics(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {

	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		labelOperation: operation,
		labelStatus:    status,
	}

	if contextualCollector, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		s.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}
