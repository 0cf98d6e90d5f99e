package spies

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// SpanContextSpy implements circulation.SpanContext and remembers what was set on it.
type SpanContextSpy struct {
	status     string
	attributes map[string]string
	mu         sync.Mutex
}

// SetStatus implements circulation.SpanContext.
func (c *SpanContextSpy) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

// AddAttribute implements circulation.SpanContext.
func (c *SpanContextSpy) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attributes[key] = value
}

// SpanRecord is one captured span from start to finish.
type SpanRecord struct {
	Name            string
	StartAttributes map[string]string
	EndAttributes   map[string]string
	Status          string
	Finished        bool
}

// TracingCollectorSpy implements circulation.TracingCollector and captures every span.
type TracingCollectorSpy struct {
	records []SpanRecord
	spans   map[*SpanContextSpy]int
	mu      sync.Mutex
}

// NewTracingCollectorSpy creates an empty TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{spans: make(map[*SpanContextSpy]int)}
}

// StartSpan implements circulation.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, circulation.SpanContext) {

	s.mu.Lock()
	defer s.mu.Unlock()

	spanCtx := &SpanContextSpy{attributes: make(map[string]string)}
	s.spans[spanCtx] = len(s.records)
	s.records = append(s.records, SpanRecord{Name: name, StartAttributes: maps.Clone(attrs)})

	return ctx, spanCtx
}

// FinishSpan implements circulation.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx circulation.SpanContext, status string, attrs map[string]string) {
	spySpanCtx, ok := spanCtx.(*SpanContextSpy)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, known := s.spans[spySpanCtx]
	if !known {
		return
	}

	spySpanCtx.mu.Lock()
	endAttrs := maps.Clone(spySpanCtx.attributes)
	spySpanCtx.mu.Unlock()

	maps.Copy(endAttrs, attrs)

	s.records[idx].EndAttributes = endAttrs
	s.records[idx].Status = status
	s.records[idx].Finished = true
}

// Spans returns a copy of all captured spans in start order.
func (s *TracingCollectorSpy) Spans() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SpanRecord, len(s.records))
	copy(out, s.records)

	return out
}

// SpanCount returns the number of started spans.
func (s *TracingCollectorSpy) SpanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}
