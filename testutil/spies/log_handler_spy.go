package spies

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// LogHandlerSpy is a slog.Handler that captures log records.
type LogHandlerSpy struct {
	records     []slog.Record
	mu          sync.Mutex
	logToStdout bool
}

// NewLogHandlerSpy creates a LogHandlerSpy. With logToStdout, records are also printed as JSON,
// which helps when debugging a test.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{logToStdout: logToStdout}
}

// Handle implements slog.Handler.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record.Clone())

	if s.logToStdout {
		_ = slog.NewJSONHandler(os.Stdout, nil).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler, all levels are captured.
func (s *LogHandlerSpy) Enabled(context.Context, slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler.
func (s *LogHandlerSpy) WithAttrs([]slog.Attr) slog.Handler {
	return s
}

// WithGroup implements slog.Handler.
func (s *LogHandlerSpy) WithGroup(string) slog.Handler {
	return s
}

// RecordCount returns the number of captured records.
func (s *LogHandlerSpy) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

// Records returns a copy of the captured records.
func (s *LogHandlerSpy) Records() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]slog.Record(nil), s.records...)
}

// Reset clears the captured records.
func (s *LogHandlerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
}

// HasLog reports whether a record with the level and message was captured.
func (s *LogHandlerSpy) HasLog(level slog.Level, message string) bool {
	_, found := s.find(level, message)
	return found
}

// HasLogWithAttr reports whether a record with the level and message carries the attribute key.
func (s *LogHandlerSpy) HasLogWithAttr(level slog.Level, message, attrKey string) bool {
	_, found := s.AttrValue(level, message, attrKey)
	return found
}

// AttrValue returns the value of an attribute of the first matching record.
func (s *LogHandlerSpy) AttrValue(level slog.Level, message, attrKey string) (slog.Value, bool) {
	record, found := s.find(level, message)
	if !found {
		return slog.Value{}, false
	}

	var value slog.Value
	var hasAttr bool

	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == attrKey {
			value, hasAttr = attr.Value, true
			return false
		}

		return true
	})

	return value, hasAttr
}

func (s *LogHandlerSpy) find(level slog.Level, message string) (slog.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.Level == level && record.Message == message {
			return record, true
		}
	}

	return slog.Record{}, false
}
