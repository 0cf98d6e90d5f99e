package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
)

func givenCollector(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewMetricsCollector(provider.Meter("circulation-test")), reader
}

func findPoint(points []oteladapters.MetricPoint, name string) (oteladapters.MetricPoint, bool) {
	for _, p := range points {
		if p.Name == name {
			return p, true
		}
	}

	return oteladapters.MetricPoint{}, false
}

func Test_MetricsCollector_RecordDuration_CreatesHistogramInSeconds(t *testing.T) {
	// arrange
	collector, reader := givenCollector(t)
	labels := map[string]string{"operation": "borrow_item", "status": "success"}

	// act
	collector.RecordDuration("circulation_operation_duration_seconds", 250*time.Millisecond, labels)
	collector.RecordDurationContext(context.Background(), "circulation_operation_duration_seconds", 750*time.Millisecond, labels)

	// assert
	points, err := oteladapters.CollectSummary(context.Background(), reader)
	require.NoError(t, err)

	point, found := findPoint(points, "circulation_operation_duration_seconds")
	require.True(t, found)
	assert.Equal(t, oteladapters.KindHistogram, point.Kind)
	assert.Equal(t, uint64(2), point.Count)
	assert.InDelta(t, 1.0, point.Sum, 0.0001)
	assert.Equal(t, labels, point.Attributes)
}

func Test_MetricsCollector_IncrementCounter_SumsPerLabelSet(t *testing.T) {
	// arrange
	collector, reader := givenCollector(t)
	success := map[string]string{"status": "success"}
	rejected := map[string]string{"status": "rejected"}

	// act
	collector.IncrementCounter("circulation_operation_calls_total", success)
	collector.IncrementCounterContext(context.Background(), "circulation_operation_calls_total", success)
	collector.IncrementCounter("circulation_operation_calls_total", rejected)

	// assert
	points, err := oteladapters.CollectSummary(context.Background(), reader)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, oteladapters.KindCounter, points[0].Kind)
	assert.Equal(t, rejected, points[0].Attributes, "points must be sorted by attributes")
	assert.Equal(t, 1.0, points[0].Value)
	assert.Equal(t, success, points[1].Attributes)
	assert.Equal(t, 2.0, points[1].Value)
}

func Test_MetricsCollector_RecordValue_KeepsLastValue(t *testing.T) {
	// arrange
	collector, reader := givenCollector(t)

	// act
	collector.RecordValue("circulation_overdue_records", 7, nil)
	collector.RecordValueContext(context.Background(), "circulation_overdue_records", 3, nil)

	// assert
	points, err := oteladapters.CollectSummary(context.Background(), reader)
	require.NoError(t, err)

	point, found := findPoint(points, "circulation_overdue_records")
	require.True(t, found)
	assert.Equal(t, oteladapters.KindGauge, point.Kind)
	assert.Equal(t, 3.0, point.Value)
	assert.Nil(t, point.Attributes)
}

func Test_MetricsCollector_IsSafeForConcurrentUse(t *testing.T) {
	collector, reader := givenCollector(t)

	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for range 100 {
				collector.IncrementCounter("circulation_concurrent_total", nil)
			}
		}()
	}

	for range 8 {
		<-done
	}

	points, err := oteladapters.CollectSummary(context.Background(), reader)
	require.NoError(t, err)

	point, found := findPoint(points, "circulation_concurrent_total")
	require.True(t, found)
	assert.Equal(t, 800.0, point.Value)
}

func Test_CollectSummary_EmptyReader(t *testing.T) {
	_, reader := givenCollector(t)

	points, err := oteladapters.CollectSummary(context.Background(), reader)

	assert.NoError(t, err)
	assert.Empty(t, points)
}
