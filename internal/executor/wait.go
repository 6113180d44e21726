package executor

import (
	"context"
	"time"

	"github.com/roach88/rclgo/internal/rcl"
)

// WaitPrimitive blocks until at least one entity is ready, an interrupt
// handle is signaled, the timeout elapses or ctx is done.
//
// A negative timeout blocks indefinitely and zero polls. The returned slice
// holds the entities that were ready when Wait returned, in input order. An
// empty result with a nil error is a timeout or an interrupt; callers do not
// need to tell them apart.
type WaitPrimitive interface {
	Wait(ctx context.Context, entities []rcl.Waitable, interrupts []*rcl.WaitHandle, timeout time.Duration) ([]rcl.Waitable, error)
}

// WaitFunc adapts a function to the WaitPrimitive interface.
type WaitFunc func(ctx context.Context, entities []rcl.Waitable, interrupts []*rcl.WaitHandle, timeout time.Duration) ([]rcl.Waitable, error)

// Wait calls f.
func (f WaitFunc) Wait(ctx context.Context, entities []rcl.Waitable, interrupts []*rcl.WaitHandle, timeout time.Duration) ([]rcl.Waitable, error) {
	return f(ctx, entities, interrupts, timeout)
}

// FanInWait is the default WaitPrimitive. It attaches every wait handle to
// one buffered channel for the duration of the call, so any signal wakes the
// waiter, and bounds the wait by the earliest timer deadline.
type FanInWait struct{}

// Wait implements WaitPrimitive.
func (FanInWait) Wait(ctx context.Context, entities []rcl.Waitable, interrupts []*rcl.WaitHandle, timeout time.Duration) ([]rcl.Waitable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wake := make(chan struct{}, 1)
	interrupted := false
	for _, h := range interrupts {
		if h.Attach(wake) {
			interrupted = true
		}
	}
	for _, w := range entities {
		w.WaitHandle().Attach(wake)
	}
	defer func() {
		for _, h := range interrupts {
			h.Detach(wake)
		}
		for _, w := range entities {
			w.WaitHandle().Detach(wake)
		}
	}()

	// Handles are attached before readiness is checked, so an entity that
	// becomes ready after this point has already signaled wake.
	ready := collectReady(entities)
	if len(ready) > 0 || interrupted || timeout == 0 {
		return ready, nil
	}

	timeout = boundByTimers(entities, timeout)
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-wake:
	case <-expired:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return collectReady(entities), nil
}

func collectReady(entities []rcl.Waitable) []rcl.Waitable {
	var ready []rcl.Waitable
	for _, w := range entities {
		if w.IsReady() {
			ready = append(ready, w)
		}
	}
	return ready
}

// boundByTimers shortens timeout to the earliest time at which a Timed
// entity becomes ready.
func boundByTimers(entities []rcl.Waitable, timeout time.Duration) time.Duration {
	for _, w := range entities {
		t, ok := w.(rcl.Timed)
		if !ok {
			continue
		}
		d, ok := t.TimeUntilReady()
		if !ok {
			continue
		}
		if d < 0 {
			d = 0
		}
		if timeout < 0 || d < timeout {
			timeout = d
		}
	}
	return timeout
}
