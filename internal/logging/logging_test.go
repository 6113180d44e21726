package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)

	logger.Info("test message", "key", "value")

	assert.Contains(t, buf.String(), "test message")
	assert.Contains(t, buf.String(), "key=value")
}

func TestNewLoggerWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "json", &buf)

	logger.Info("test message", "key", "value")

	assert.Contains(t, buf.String(), `"msg":"test message"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelWarn, "text", &buf)

	logger.Info("should not appear")
	logger.Warn("should appear")

	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestFatal_LevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LevelFatal, "text", &buf)

	logger.Error("filtered")
	Fatal(logger, "boom")

	assert.NotContains(t, buf.String(), "filtered")
	assert.Contains(t, buf.String(), "level=FATAL")
	assert.Contains(t, buf.String(), "boom")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"Fatal":   LevelFatal,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestConfigure_RestoresDefault(t *testing.T) {
	prev := slog.Default()
	var buf bytes.Buffer

	restore := Configure("debug", "json", &buf)
	slog.Debug("configured")
	restore()

	assert.Contains(t, buf.String(), `"msg":"configured"`)
	assert.Same(t, prev, slog.Default())
}

func TestThrottle_SuppressesAndReports(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)
	th := NewThrottle(time.Hour, 2)

	ctx := context.Background()
	assert.True(t, th.Log(ctx, logger, slog.LevelError, "first"))
	assert.True(t, th.Log(ctx, logger, slog.LevelError, "second"))
	assert.False(t, th.Log(ctx, logger, slog.LevelError, "third"))
	assert.False(t, th.Log(ctx, logger, slog.LevelError, "fourth"))

	assert.Equal(t, 2, th.Suppressed())
	assert.NotContains(t, buf.String(), "third")
}

func TestThrottle_ReportsSuppressedCount(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "text", &buf)
	th := NewThrottle(20*time.Millisecond, 1)

	ctx := context.Background()
	th.Log(ctx, logger, slog.LevelWarn, "a")
	th.Log(ctx, logger, slog.LevelWarn, "b")

	time.Sleep(40 * time.Millisecond)
	assert.True(t, th.Log(ctx, logger, slog.LevelWarn, "c"))
	assert.Contains(t, buf.String(), "suppressed=1")
	assert.Equal(t, 0, th.Suppressed())
}
