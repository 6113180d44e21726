// Package logging builds the slog loggers used by rclgo.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelFatal sits above slog.LevelError. ROS severities include FATAL, which
// slog has no name for.
const LevelFatal = slog.Level(12)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR, FATAL)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr by default (stdout is reserved for program output).
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
		a.Value = slog.StringValue("FATAL")
	}
	return a
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "fatal":
		return LevelFatal
	default:
		return slog.LevelInfo
	}
}

// Configure installs a logger built from level and format as the process
// default and returns a function that restores the previous default.
func Configure(level, format string, w io.Writer) (restore func()) {
	if w == nil {
		w = os.Stderr
	}
	prev := slog.Default()
	slog.SetDefault(NewLoggerWithWriter(ParseLevel(level), format, w))
	return func() { slog.SetDefault(prev) }
}

// Fatal logs at LevelFatal. It does not exit.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFatal, msg, args...)
}
