package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle drops log records once a token bucket is exhausted and reports how
// many were dropped with the next record that gets through.
type Throttle struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// NewThrottle allows burst records immediately and then one per interval.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Log writes the record if the bucket has a token.
// It reports whether the record was written.
func (t *Throttle) Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, args ...any) bool {
	if !t.limiter.Allow() {
		t.mu.Lock()
		t.suppressed++
		t.mu.Unlock()
		return false
	}

	t.mu.Lock()
	suppressed := t.suppressed
	t.suppressed = 0
	t.mu.Unlock()

	if suppressed > 0 {
		args = append(args, "suppressed", suppressed)
	}
	logger.Log(ctx, level, msg, args...)
	return true
}

// Suppressed returns the number of records dropped since the last one written.
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
