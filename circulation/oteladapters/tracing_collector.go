package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// TracingCollector implements circulation.TracingCollector using the OpenTelemetry tracing API.
type TracingCollector struct {
	tracer trace.Tracer
}

var _ circulation.TracingCollector = (*TracingCollector)(nil)

// NewTracingCollector creates a tracing collector from a tracer of your TracerProvider.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span carrying attrs and returns the context that holds it.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, circulation.SpanContext) {

	spanCtx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toKeyValues(attrs)...))

	return spanCtx, &SpanContext{span: span}
}

// FinishSpan adds attrs, sets the status and ends the span. Foreign SpanContext values are ignored.
func (t *TracingCollector) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*SpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(toKeyValues(attrs)...)
	otelSpanCtx.SetStatus(status)
	otelSpanCtx.span.End()
}

// SpanContext implements circulation.SpanContext by wrapping an OpenTelemetry span.
type SpanContext struct {
	span trace.Span
}

var _ circulation.SpanContext = (*SpanContext)(nil)

// SetStatus maps an outcome status to the span status.
// Rejections by a business rule are no errors of the system, the span stays unset and carries the status as attribute.
func (s *SpanContext) SetStatus(status string) {
	switch status {
	case "success":
		s.span.SetStatus(codes.Ok, "")
	case "error":
		s.span.SetStatus(codes.Error, "operation failed")
	case "canceled":
		s.span.SetStatus(codes.Error, "operation canceled")
	case "timeout":
		s.span.SetStatus(codes.Error, "operation timed out")
	case "concurrency_conflict":
		s.span.SetStatus(codes.Error, "concurrency conflict")
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

// AddAttribute adds a string attribute to the span.
func (s *SpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func toKeyValues(attrs map[string]string) []attribute.KeyValue {
	keyValues := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		keyValues = append(keyValues, attribute.String(key, value))
	}

	return keyValues
}
