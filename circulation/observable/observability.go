package observable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	// OperationDurationMetric tracks the duration of workflow operations.
	OperationDurationMetric = "circulation_operation_duration_seconds"
	// OperationCallsMetric counts workflow operations by outcome status.
	OperationCallsMetric = "circulation_operation_calls_total"
	// FineAssessedMetric records the fine of each late return.
	FineAssessedMetric = "circulation_fine_assessed"
	// PaymentAppliedMetric records the applied amount of each payment.
	PaymentAppliedMetric = "circulation_payment_applied"
	// OverdueRecordsMetric records the number of overdue records found.
	OverdueRecordsMetric = "circulation_overdue_records"

	OperationBorrowItem             = "borrow_item"
	OperationReturnItem             = "return_item"
	OperationPayFine                = "pay_fine"
	OperationTotalFine              = "total_fine"
	OperationHasUnpaidFine          = "has_unpaid_fine"
	OperationOverdueRecords         = "overdue_records"
	OperationPatronsWithUnpaidFines = "patrons_with_unpaid_fines"

	// StatusSuccess indicates a completed operation.
	StatusSuccess = "success"
	// StatusRejected indicates an operation refused by a business rule.
	StatusRejected = "rejected"
	// StatusConcurrencyConflict indicates a conflict that persisted through all retries.
	StatusConcurrencyConflict = "concurrency_conflict"
	// StatusCanceled indicates a canceled context.
	StatusCanceled = "canceled"
	// StatusTimeout indicates an exceeded deadline.
	StatusTimeout = "timeout"
	// StatusError indicates a storage or other technical failure.
	StatusError = "error"

	// SpanNamePrefix prefixes the operation name of each span.
	SpanNamePrefix = "circulation."

	LogMsgOperationStarted   = "circulation operation started"
	LogMsgOperationCompleted = "circulation operation completed"
	LogMsgOperationRejected  = "circulation operation rejected"
	LogMsgOperationFailed    = "circulation operation failed"
	LogMsgRestockFailed      = "returned item could not be restocked"

	LogAttrOperation     = "operation"
	LogAttrStatus        = "status"
	LogAttrDurationMS    = "duration_ms"
	LogAttrError         = "error"
	LogAttrReason        = "reason"
	LogAttrPatronID      = "patron_id"
	LogAttrItemID        = "item_id"
	LogAttrBorrowID      = "borrow_id"
	LogAttrDueDate       = "due_date"
	LogAttrOverdueDays   = "overdue_days"
	LogAttrFine          = "fine"
	LogAttrRestocked     = "restocked"
	LogAttrPaymentID     = "payment_id"
	LogAttrAmount        = "amount"
	LogAttrApplied       = "applied"
	LogAttrUnapplied     = "unapplied"
	LogAttrHasUnpaidFine = "has_unpaid_fine"
	LogAttrRecordCount   = "record_count"
)

var rejections = []error{
	circulation.ErrNotFound,
	circulation.ErrOutOfStock,
	circulation.ErrNoActiveBorrow,
	circulation.ErrAlreadyBorrowed,
	circulation.ErrUnpaidFineBlocking,
	circulation.ErrInvalidAmount,
	circulation.ErrUnknownItemType,
}

// ClassifyOutcome maps the error of an operation to its status label.
func ClassifyOutcome(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, circulation.ErrConcurrencyConflict):
		return StatusConcurrencyConflict
	}

	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return StatusRejected
		}
	}

	return StatusError
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (w *WorkflowWrapper) recordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if w.metricsCollector == nil {
		return
	}

	labels := map[string]string{LogAttrOperation: operation, LogAttrStatus: status}

	if contextualCollector, ok := w.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, OperationDurationMetric, duration, labels)
		contextualCollector.IncrementCounterContext(ctx, OperationCallsMetric, labels)
	} else {
		w.metricsCollector.RecordDuration(OperationDurationMetric, duration, labels)
		w.metricsCollector.IncrementCounter(OperationCallsMetric, labels)
	}
}

func (w *WorkflowWrapper) recordValue(ctx context.Context, metric string, value float64, operation string) {
	if w.metricsCollector == nil {
		return
	}

	labels := map[string]string{LogAttrOperation: operation}

	if contextualCollector, ok := w.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		w.metricsCollector.RecordValue(metric, value, labels)
	}
}

func (w *WorkflowWrapper) logInfo(ctx context.Context, msg string, args ...any) {
	if w.contextualLogger != nil {
		w.contextualLogger.InfoContext(ctx, msg, args...)
	} else if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *WorkflowWrapper) logWarn(ctx context.Context, msg string, args ...any) {
	if w.contextualLogger != nil {
		w.contextualLogger.WarnContext(ctx, msg, args...)
	} else if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}

func (w *WorkflowWrapper) logError(ctx context.Context, msg string, args ...any) {
	if w.contextualLogger != nil {
		w.contextualLogger.ErrorContext(ctx, msg, args...)
	} else if w.logger != nil {
		w.logger.Error(msg, args...)
	}
}

func (w *WorkflowWrapper) startSpan(ctx context.Context, operation string, attrs []any) (context.Context, circulation.SpanContext) {
	if w.tracingCollector == nil {
		return ctx, nil
	}

	spanAttrs := map[string]string{LogAttrOperation: operation}
	for i := 0; i+1 < len(attrs); i += 2 {
		spanAttrs[fmt.Sprint(attrs[i])] = fmt.Sprint(attrs[i+1])
	}

	return w.tracingCollector.StartSpan(ctx, SpanNamePrefix+operation, spanAttrs)
}

func (w *WorkflowWrapper) finishSpan(span circulation.SpanContext, status string, duration time.Duration, err error) {
	if w.tracingCollector == nil || span == nil {
		return
	}

	attrs := map[string]string{
		LogAttrDurationMS: strconv.FormatFloat(toMilliseconds(duration), 'f', -1, 64),
	}

	if err != nil {
		attrs[LogAttrError] = err.Error()
	}

	w.tracingCollector.FinishSpan(span, status, attrs)
}
