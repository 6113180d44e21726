package rcl

import (
	"context"
	"sync"
)

// Future holds the eventual result of an asynchronous request. It is
// completed by the executor when the response is dispatched.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	result    any
	err       error
	callbacks []func(*Future)
}

// NewFuture creates an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has completed.
func (f *Future) IsDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Result returns the result and error. Both are zero until the future
// completes.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

// Wait blocks until the future completes or ctx is done. It does not spin an
// executor; something else must dispatch the response.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetResult completes the future with v. Completing twice is a no-op.
func (f *Future) SetResult(v any) {
	f.complete(v, nil)
}

// SetError completes the future with err.
func (f *Future) SetError(err error) {
	f.complete(nil, err)
}

// Cancel completes the future with ErrFutureCanceled.
func (f *Future) Cancel() {
	f.complete(nil, ErrFutureCanceled)
}

func (f *Future) complete(v any, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.result, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(f)
	}
}

// AddDoneCallback runs cb when the future completes, or immediately if it
// already has.
func (f *Future) AddDoneCallback(cb func(*Future)) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		cb(f)
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}
