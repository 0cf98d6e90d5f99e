package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// SlogBridgeLogger implements circulation.ContextualLogger and circulation.Logger on a slog.Logger.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

var (
	_ circulation.ContextualLogger = (*SlogBridgeLogger)(nil)
	_ circulation.Logger           = (*SlogBridgeLogger)(nil)
)

// NewSlogBridgeLogger creates a logger on the OpenTelemetry slog bridge with automatic trace correlation.
// Records go to the global LoggerProvider under the instrumentation scope name.
func NewSlogBridgeLogger(name string) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name)}
}

// NewSlogBridgeLoggerWithHandler creates a logger on an arbitrary slog.Handler, without OpenTelemetry.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: slog.New(handler)}
}

// Slog exposes the underlying slog.Logger.
func (l *SlogBridgeLogger) Slog() *slog.Logger {
	return l.logger
}

// DebugContext logs a debug message with context.
func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

// InfoContext logs an info message with context.
func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

// WarnContext logs a warning message with context.
func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs an error message with context.
func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// Debug logs a debug message.
func (l *SlogBridgeLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs an info message.
func (l *SlogBridgeLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs a warning message.
func (l *SlogBridgeLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs an error message.
func (l *SlogBridgeLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
