package oteladapters

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanWriter is a span exporter that writes one text line per finished span, e.g. for a CLI trace report.
type SpanWriter struct {
	mu sync.Mutex
	w  io.Writer
}

var _ sdktrace.SpanExporter = (*SpanWriter)(nil)

// NewSpanWriter creates a SpanWriter on w.
func NewSpanWriter(w io.Writer) *SpanWriter {
	return &SpanWriter{w: w}
}

// ExportSpans implements sdktrace.SpanExporter.
func (s *SpanWriter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range spans {
		durationMS := float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000

		pairs := make([]string, 0, len(span.Attributes()))
		for _, attr := range span.Attributes() {
			pairs = append(pairs, string(attr.Key)+"="+attr.Value.Emit())
		}

		slices.Sort(pairs)

		if _, err := fmt.Fprintf(s.w, "span %s status=%s duration_ms=%.3f %s\n",
			span.Name(), span.Status().Code, durationMS, strings.Join(pairs, " ")); err != nil {
			return err
		}
	}

	return nil
}

// Shutdown implements sdktrace.SpanExporter. The writer is owned by the caller and stays open.
func (s *SpanWriter) Shutdown(context.Context) error {
	return nil
}
