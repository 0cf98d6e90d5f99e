package oteladapters

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Kinds of summarized data points.
const (
	KindHistogram = "histogram"
	KindCounter   = "counter"
	KindGauge     = "gauge"
)

// MetricPoint is one flattened data point.
// Histograms carry Count and Sum, counters and gauges carry Value.
type MetricPoint struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
	Value      float64           `json:"value"`
}

// CollectSummary collects the current state of reader and flattens it, sorted by name and attributes.
func CollectSummary(ctx context.Context, reader sdkmetric.Reader) ([]MetricPoint, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	points := make([]MetricPoint, 0)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{
						Name: m.Name, Kind: KindHistogram, Attributes: toMap(dp.Attributes), Count: dp.Count, Sum: dp.Sum,
					})
				}
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{
						Name: m.Name, Kind: KindCounter, Attributes: toMap(dp.Attributes), Value: float64(dp.Value),
					})
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{
						Name: m.Name, Kind: KindGauge, Attributes: toMap(dp.Attributes), Value: dp.Value,
					})
				}
			}
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Name != points[j].Name {
			return points[i].Name < points[j].Name
		}

		return attributeKey(points[i].Attributes) < attributeKey(points[j].Attributes)
	})

	return points, nil
}

func toMap(set attribute.Set) map[string]string {
	kvs := set.ToSlice()
	if len(kvs) == 0 {
		return nil
	}

	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}

	return m
}

func attributeKey(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k + "=" + attrs[k] + ";")
	}

	return b.String()
}
