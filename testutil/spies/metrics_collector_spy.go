package spies

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MetricKind tells which collector method produced a MetricRecord.
type MetricKind string

// Kinds of captured metric calls.
const (
	MetricKindDuration MetricKind = "duration"
	MetricKindCounter  MetricKind = "counter"
	MetricKindValue    MetricKind = "value"
)

// MetricRecord is one captured metrics call.
type MetricRecord struct {
	Kind       MetricKind
	Metric     string
	Duration   time.Duration
	Value      float64
	Labels     map[string]string
	Contextual bool
}

// MetricsCollectorSpy implements circulation.MetricsCollector and captures every call.
type MetricsCollectorSpy struct {
	records []MetricRecord
	mu      sync.Mutex
}

// NewMetricsCollectorSpy creates a MetricsCollectorSpy without the context-aware methods.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

// RecordDuration implements circulation.MetricsCollector.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.add(MetricRecord{Kind: MetricKindDuration, Metric: metric, Duration: duration, Labels: labels})
}

// IncrementCounter implements circulation.MetricsCollector.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.add(MetricRecord{Kind: MetricKindCounter, Metric: metric, Labels: labels})
}

// RecordValue implements circulation.MetricsCollector.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.add(MetricRecord{Kind: MetricKindValue, Metric: metric, Value: value, Labels: labels})
}

// Records returns a copy of the captured calls for one metric name.
func (s *MetricsCollectorSpy) Records(metric string) []MetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []MetricRecord

	for _, r := range s.records {
		if r.Metric == metric {
			records = append(records, r)
		}
	}

	return records
}

// HasRecord reports whether a call for the metric with all the given labels was captured.
func (s *MetricsCollectorSpy) HasRecord(metric string, labels map[string]string) bool {
	for _, r := range s.Records(metric) {
		if containsLabels(r.Labels, labels) {
			return true
		}
	}

	return false
}

// RecordCount returns the number of captured calls.
func (s *MetricsCollectorSpy) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Reset clears the captured calls.
func (s *MetricsCollectorSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

func (s *MetricsCollectorSpy) add(record MetricRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.Labels = maps.Clone(record.Labels)
	s.records = append(s.records, record)
}

// ContextualMetricsCollectorSpy additionally implements circulation.ContextualMetricsCollector.
// Calls through the context-aware methods are captured with Contextual set.
type ContextualMetricsCollectorSpy struct {
	*MetricsCollectorSpy
}

// NewContextualMetricsCollectorSpy creates a ContextualMetricsCollectorSpy.
func NewContextualMetricsCollectorSpy() ContextualMetricsCollectorSpy {
	return ContextualMetricsCollectorSpy{MetricsCollectorSpy: NewMetricsCollectorSpy()}
}

// RecordDurationContext implements circulation.ContextualMetricsCollector.
func (s ContextualMetricsCollectorSpy) RecordDurationContext(
	_ context.Context,
	metric string,
	duration time.Duration,
	labels map[string]string,
) {

	s.add(MetricRecord{Kind: MetricKindDuration, Metric: metric, Duration: duration, Labels: labels, Contextual: true})
}

// IncrementCounterContext implements circulation.ContextualMetricsCollector.
func (s ContextualMetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.add(MetricRecord{Kind: MetricKindCounter, Metric: metric, Labels: labels, Contextual: true})
}

// RecordValueContext implements circulation.ContextualMetricsCollector.
func (s ContextualMetricsCollectorSpy) RecordValueContext(
	_ context.Context,
	metric string,
	value float64,
	labels map[string]string,
) {

	s.add(MetricRecord{Kind: MetricKindValue, Metric: metric, Value: value, Labels: labels, Contextual: true})
}

func containsLabels(actual, expected map[string]string) bool {
	for k, v := range expected {
		if actual[k] != v {
			return false
		}
	}

	return true
}
