package spies

import (
	"context"
	"sync"
)

// ContextualLoggerSpy captures the calls of a circulation.ContextualLogger.
type ContextualLoggerSpy struct {
	records []ContextualLogRecord
	mu      sync.Mutex
}

// ContextualLogRecord is one captured call.
type ContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// NewContextualLoggerSpy creates a ContextualLoggerSpy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

// InfoContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

// WarnContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

// ErrorContext implements circulation.ContextualLogger.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

// Records returns a copy of the captured calls at one level.
func (s *ContextualLoggerSpy) Records(level string) []ContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []ContextualLogRecord

	for _, r := range s.records {
		if r.Level == level {
			records = append(records, r)
		}
	}

	return records
}

// HasLog reports whether a call with the level and message was captured.
func (s *ContextualLoggerSpy) HasLog(level, message string) bool {
	for _, r := range s.Records(level) {
		if r.Message == message {
			return true
		}
	}

	return false
}

// RecordCount returns the number of captured calls across all levels.
func (s *ContextualLoggerSpy) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, ContextualLogRecord{Level: level, Message: msg, Args: args, Context: ctx})
}
