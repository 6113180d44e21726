package executor

import (
	"context"
	"log/slog"

	"github.com/roach88/rclgo/internal/rcl"
)

// ErrorHandler receives CALLBACK_INVOCATION errors. It runs on the goroutine
// that ran the failed callback and must not block for long.
type ErrorHandler func(ctx context.Context, err *Error)

// Option configures an Executor.
type Option func(*Executor)

// WithContext binds the executor to rctx: Spin returns once rctx shuts
// down. Without it the executor follows the context of the first node
// added.
func WithContext(rctx *rcl.Context) Option {
	return func(e *Executor) {
		e.rctx = rctx
	}
}

// WithLogger sets the executor's logger.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithWaitPrimitive replaces the default FanInWait.
func WithWaitPrimitive(w WaitPrimitive) Option {
	return func(e *Executor) {
		e.wait = w
	}
}

// WithErrorHandler sets the handler for callback failures.
// Default: a rate-limited error log.
func WithErrorHandler(h ErrorHandler) Option {
	return func(e *Executor) {
		e.onError = h
	}
}

// WithRecorder records the run and every dispatch to r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithRunID sets the id of the recorded run.
// Default: a generated id.
func WithRunID(id string) Option {
	return func(e *Executor) {
		e.runID = id
	}
}

// WithSource names the launch file or scenario the run came from.
func WithSource(source string) Option {
	return func(e *Executor) {
		e.source = source
	}
}

// WithIDGenerator sets the generator for the executor and run ids.
// Use rcl.NewSequentialGenerator in tests for stable ids.
func WithIDGenerator(ids rcl.IDGenerator) Option {
	return func(e *Executor) {
		e.ids = ids
	}
}

// WithClock sets the logical clock, e.g. NewClockAt to continue an
// earlier run's numbering.
func WithClock(c *Clock) Option {
	return func(e *Executor) {
		e.clock = c
	}
}
