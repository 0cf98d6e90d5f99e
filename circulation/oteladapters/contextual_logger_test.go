package oteladapters_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/testutil/spies"
)

func Test_SlogBridgeLogger_WithHandler_ForwardsAllLevels(t *testing.T) {
	// arrange
	handler := spies.NewLogHandlerSpy(false)
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "debug message", "key", "value")
	logger.InfoContext(ctx, "info message")
	logger.WarnContext(ctx, "warn message")
	logger.ErrorContext(ctx, "error message", "error", "boom")
	logger.Info("plain info")

	// assert
	assert.Equal(t, 5, handler.RecordCount())
	assert.True(t, handler.HasLogWithAttr(slog.LevelDebug, "debug message", "key"))
	assert.True(t, handler.HasLog(slog.LevelInfo, "info message"))
	assert.True(t, handler.HasLog(slog.LevelWarn, "warn message"))
	assert.True(t, handler.HasLogWithAttr(slog.LevelError, "error message", "error"))
	assert.True(t, handler.HasLog(slog.LevelInfo, "plain info"))
}

func Test_SlogBridgeLogger_OnGlobalProvider(t *testing.T) {
	logger := oteladapters.NewSlogBridgeLogger("circulation-test")

	assert.NotNil(t, logger.Slog())
	assert.NotPanics(t, func() {
		logger.InfoContext(context.Background(), "goes to the global no-op provider")
	})
}
