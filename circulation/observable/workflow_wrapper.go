package observable

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Circulation is the set of operations the wrapper decorates. circulation.Workflow implements it.
type Circulation interface {
	BorrowItem(ctx context.Context, patronID circulation.PatronIDString, itemID circulation.ItemIDInt64) (circulation.Loan, error)
	ReturnItem(ctx context.Context, patronID circulation.PatronIDString, itemID circulation.ItemIDInt64) (circulation.Return, error)
	PayFine(ctx context.Context, patronID circulation.PatronIDString, amount int64) (circulation.Payment, error)
	TotalFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error)
	HasUnpaidFine(ctx context.Context, patronID circulation.PatronIDString) (bool, error)
	OverdueRecords(ctx context.Context) ([]circulation.BorrowRecord, error)
	PatronsWithUnpaidFines(ctx context.Context) ([]circulation.PatronIDString, error)
}

var _ Circulation = circulation.Workflow{}

// WorkflowWrapper adds logging, metrics and tracing to a Circulation and delegates everything else.
type WorkflowWrapper struct {
	core             Circulation
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
	contextualLogger circulation.ContextualLogger
	logger           circulation.Logger
}

var _ Circulation = (*WorkflowWrapper)(nil)

// Option defines a functional option for configuring the WorkflowWrapper.
type Option func(*WorkflowWrapper) error

// ErrNilCore is returned by NewWorkflowWrapper when there is nothing to wrap.
var ErrNilCore = errors.New("wrapped workflow must not be nil")

// WithMetrics sets the metrics collector.
func WithMetrics(collector circulation.MetricsCollector) Option {
	return func(w *WorkflowWrapper) error {
		w.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector. Every operation then runs inside its own span.
func WithTracing(collector circulation.TracingCollector) Option {
	return func(w *WorkflowWrapper) error {
		w.tracingCollector = collector
		return nil
	}
}

// WithContextualLogger sets the contextual logger. It takes precedence over the basic logger.
func WithContextualLogger(logger circulation.ContextualLogger) Option {
	return func(w *WorkflowWrapper) error {
		w.contextualLogger = logger
		return nil
	}
}

// WithLogger sets the basic logger.
func WithLogger(logger circulation.Logger) Option {
	return func(w *WorkflowWrapper) error {
		w.logger = logger
		return nil
	}
}

// NewWorkflowWrapper creates a new observable wrapper around core.
func NewWorkflowWrapper(core Circulation, opts ...Option) (*WorkflowWrapper, error) {
	if core == nil {
		return nil, ErrNilCore
	}

	wrapper := &WorkflowWrapper{core: core}

	for _, opt := range opts {
		if err := opt(wrapper); err != nil {
			return nil, err
		}
	}

	return wrapper, nil
}

// BorrowItem delegates to the core and observes the outcome.
func (w *WorkflowWrapper) BorrowItem(
	ctx context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.Loan, error) {

	return observe(ctx, w, OperationBorrowItem,
		func(ctx context.Context) (circulation.Loan, error) { return w.core.BorrowItem(ctx, patronID, itemID) },
		func(loan circulation.Loan) []any {
			return []any{LogAttrPatronID, patronID, LogAttrItemID, itemID, LogAttrDueDate, loan.DueDate.Format(time.DateOnly)}
		},
		LogAttrPatronID, patronID, LogAttrItemID, itemID,
	)
}

// ReturnItem delegates to the core and observes the outcome. A fine above zero is recorded as a value.
func (w *WorkflowWrapper) ReturnItem(
	ctx context.Context,
	patronID circulation.PatronIDString,
	itemID circulation.ItemIDInt64,
) (circulation.Return, error) {

	result, err := observe(ctx, w, OperationReturnItem,
		func(ctx context.Context) (circulation.Return, error) { return w.core.ReturnItem(ctx, patronID, itemID) },
		func(r circulation.Return) []any {
			return []any{
				LogAttrPatronID, patronID,
				LogAttrItemID, itemID,
				LogAttrOverdueDays, r.OverdueDays,
				LogAttrFine, r.Fine,
				LogAttrRestocked, r.Restocked,
			}
		},
		LogAttrPatronID, patronID, LogAttrItemID, itemID,
	)

	if err == nil && result.Fine > 0 {
		w.recordValue(ctx, FineAssessedMetric, float64(result.Fine), OperationReturnItem)
	}

	if err == nil && !result.Restocked {
		w.logWarn(ctx, LogMsgRestockFailed, LogAttrBorrowID, result.BorrowID, LogAttrItemID, itemID)
	}

	return result, err
}

// PayFine delegates to the core and observes the outcome. The applied amount is recorded as a value.
func (w *WorkflowWrapper) PayFine(
	ctx context.Context,
	patronID circulation.PatronIDString,
	amount int64,
) (circulation.Payment, error) {

	payment, err := observe(ctx, w, OperationPayFine,
		func(ctx context.Context) (circulation.Payment, error) { return w.core.PayFine(ctx, patronID, amount) },
		func(p circulation.Payment) []any {
			return []any{
				LogAttrPatronID, patronID,
				LogAttrPaymentID, p.ID.String(),
				LogAttrAmount, p.Amount,
				LogAttrApplied, p.Applied,
				LogAttrUnapplied, p.Unapplied,
			}
		},
		LogAttrPatronID, patronID, LogAttrAmount, amount,
	)

	if err == nil {
		w.recordValue(ctx, PaymentAppliedMetric, float64(payment.Applied), OperationPayFine)
	}

	return payment, err
}

// TotalFine delegates to the core and observes the outcome.
func (w *WorkflowWrapper) TotalFine(ctx context.Context, patronID circulation.PatronIDString) (int64, error) {
	return observe(ctx, w, OperationTotalFine,
		func(ctx context.Context) (int64, error) { return w.core.TotalFine(ctx, patronID) },
		func(total int64) []any { return []any{LogAttrPatronID, patronID, LogAttrFine, total} },
		LogAttrPatronID, patronID,
	)
}

// HasUnpaidFine delegates to the core and observes the outcome.
func (w *WorkflowWrapper) HasUnpaidFine(ctx context.Context, patronID circulation.PatronIDString) (bool, error) {
	return observe(ctx, w, OperationHasUnpaidFine,
		func(ctx context.Context) (bool, error) { return w.core.HasUnpaidFine(ctx, patronID) },
		func(hasFine bool) []any { return []any{LogAttrPatronID, patronID, LogAttrHasUnpaidFine, hasFine} },
		LogAttrPatronID, patronID,
	)
}

// OverdueRecords delegates to the core and observes the outcome. The number of overdue records is recorded as a value.
func (w *WorkflowWrapper) OverdueRecords(ctx context.Context) ([]circulation.BorrowRecord, error) {
	records, err := observe(ctx, w, OperationOverdueRecords,
		w.core.OverdueRecords,
		func(records []circulation.BorrowRecord) []any { return []any{LogAttrRecordCount, len(records)} },
	)

	if err == nil {
		w.recordValue(ctx, OverdueRecordsMetric, float64(len(records)), OperationOverdueRecords)
	}

	return records, err
}

// PatronsWithUnpaidFines delegates to the core and observes the outcome.
func (w *WorkflowWrapper) PatronsWithUnpaidFines(ctx context.Context) ([]circulation.PatronIDString, error) {
	return observe(ctx, w, OperationPatronsWithUnpaidFines,
		w.core.PatronsWithUnpaidFines,
		func(patrons []circulation.PatronIDString) []any { return []any{LogAttrRecordCount, len(patrons)} },
	)
}

// observe runs fn between the start and outcome instrumentation of one operation.
func observe[T any](
	ctx context.Context,
	w *WorkflowWrapper,
	operation string,
	fn func(ctx context.Context) (T, error),
	successAttrs func(T) []any,
	startAttrs ...any,
) (T, error) {

	ctx, span := w.startSpan(ctx, operation, startAttrs)

	start := time.Now()
	w.logInfo(ctx, LogMsgOperationStarted, append([]any{LogAttrOperation, operation}, startAttrs...)...)

	result, err := fn(ctx)
	duration := time.Since(start)
	status := ClassifyOutcome(err)

	w.recordOperation(ctx, operation, status, duration)
	w.finishSpan(span, status, duration, err)

	switch status {
	case StatusSuccess:
		attrs := append([]any{LogAttrOperation, operation, LogAttrDurationMS, toMilliseconds(duration)}, successAttrs(result)...)
		w.logInfo(ctx, LogMsgOperationCompleted, attrs...)
	case StatusRejected:
		w.logInfo(ctx, LogMsgOperationRejected, LogAttrOperation, operation, LogAttrStatus, status, LogAttrReason, err.Error())
	default:
		w.logError(ctx, LogMsgOperationFailed, LogAttrOperation, operation, LogAttrStatus, status, LogAttrError, err.Error())
	}

	return result, err
}
