package spies

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// LogExporterSpy implements sdklog.Exporter and keeps clones of all exported log records.
type LogExporterSpy struct {
	records []sdklog.Record
	mu      sync.Mutex
}

var _ sdklog.Exporter = (*LogExporterSpy)(nil)

// NewLogExporterSpy creates an empty LogExporterSpy.
func NewLogExporterSpy() *LogExporterSpy {
	return &LogExporterSpy{}
}

// NewLoggerProvider creates an SDK LoggerProvider exporting synchronously to the spy.
func (e *LogExporterSpy) NewLoggerProvider() *sdklog.LoggerProvider {
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(e)))
}

// Export implements sdklog.Exporter.
func (e *LogExporterSpy) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}

	return nil
}

// Shutdown implements sdklog.Exporter.
func (e *LogExporterSpy) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdklog.Exporter.
func (e *LogExporterSpy) ForceFlush(context.Context) error { return nil }

// Records returns a copy of all exported records.
func (e *LogExporterSpy) Records() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]sdklog.Record(nil), e.records...)
}

// HasRecord reports whether a record with the given body and severity was exported.
func (e *LogExporterSpy) HasRecord(severity log.Severity, body string) bool {
	for _, record := range e.Records() {
		if record.Severity() == severity && record.Body().AsString() == body {
			return true
		}
	}

	return false
}

// Attributes flattens the attributes of a record into a map.
func Attributes(record *sdklog.Record) map[string]log.Value {
	attrs := make(map[string]log.Value)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	return attrs
}
