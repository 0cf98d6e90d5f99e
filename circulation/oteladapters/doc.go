// Package oteladapters implements the circulation observability interfaces on OpenTelemetry.
//
//   - MetricsCollector maps durations to histograms, counters to counters, and values to gauges
//   - TracingCollector starts one span per operation and maps outcome statuses to span status codes
//   - SlogBridgeLogger logs through the OpenTelemetry slog bridge with trace correlation
//   - OTelLogger emits records on the OpenTelemetry logs API without slog in between
//   - SpanWriter exports finished spans as text lines
//   - CollectSummary reads a ManualReader and flattens the data points, e.g. for a CLI report
package oteladapters
