package oteladapters_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/testutil/spies"
)

func givenOTelLogger(t *testing.T) (*oteladapters.OTelLogger, *spies.LogExporterSpy) {
	t.Helper()

	exporter := spies.NewLogExporterSpy()
	provider := exporter.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewOTelLogger(provider.Logger("circulation-test")), exporter
}

func Test_OTelLogger_EmitsAllSeverities(t *testing.T) {
	// arrange
	logger, exporter := givenOTelLogger(t)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message")
	logger.InfoContext(ctx, "info message")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message")

	// assert
	records := exporter.Records()
	require.Len(t, records, 4)

	expected := []struct {
		severity log.Severity
		text     string
		body     string
	}{
		{log.SeverityDebug, "DEBUG", "debug message"},
		{log.SeverityInfo, "INFO", "info message"},
		{log.SeverityWarn, "WARN", "warn message"},
		{log.SeverityError, "ERROR", "error message"},
	}

	for i, want := range expected {
		assert.Equal(t, want.severity, records[i].Severity())
		assert.Equal(t, want.text, records[i].SeverityText())
		assert.Equal(t, want.body, records[i].Body().AsString())
	}
}

func Test_OTelLogger_ConvertsKeyValueArgsToAttributes(t *testing.T) {
	// arrange
	logger, exporter := givenOTelLogger(t)

	// act
	logger.InfoContext(context.Background(), "item borrowed",
		"item_id", "item-1",
		"overdue_days", 3,
		"fine", int64(450),
		"duration_ms", 1.5,
		"detached", true,
		"error", errors.New("boom"),
		42, "non-string key is skipped",
		"dangling",
	)

	// assert
	records := exporter.Records()
	require.Len(t, records, 1)

	attrs := spies.Attributes(&records[0])
	assert.Len(t, attrs, 6)
	assert.Equal(t, "item-1", attrs["item_id"].AsString())
	assert.Equal(t, int64(3), attrs["overdue_days"].AsInt64())
	assert.Equal(t, int64(450), attrs["fine"].AsInt64())
	assert.InDelta(t, 1.5, attrs["duration_ms"].AsFloat64(), 0.0001)
	assert.True(t, attrs["detached"].AsBool())
	assert.Equal(t, "boom", attrs["error"].AsString())
	assert.NotContains(t, attrs, "dangling")
}

func Test_OTelLogger_CorrelatesWithTheSpanInContext(t *testing.T) {
	// arrange
	logger, exporter := givenOTelLogger(t)
	tracerProvider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tracerProvider.Shutdown(context.Background()) })

	ctx, span := tracerProvider.Tracer("circulation-test").Start(context.Background(), "circulation.ReturnItem")

	// act
	logger.InfoContext(ctx, "item returned")
	span.End()

	// assert
	records := exporter.Records()
	require.Len(t, records, 1)
	assert.Equal(t, span.SpanContext().TraceID(), records[0].TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), records[0].SpanID())
}
