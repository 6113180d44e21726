package executor

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/rclgo/internal/ir"
)

// Recorder receives a record of every run and every dispatch.
//
// RecordDispatch is called after the callback returns, from the goroutine
// that ran it. Implementations must be safe for concurrent use. Errors are
// logged and never stop the executor.
type Recorder interface {
	RecordRun(ctx context.Context, run ir.Run) error
	RecordDispatch(ctx context.Context, d ir.Dispatch) error
}

// MemoryRecorder keeps records in memory. Used by the conformance harness
// and tests.
type MemoryRecorder struct {
	mu         sync.Mutex
	runs       []ir.Run
	dispatches []ir.Dispatch
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordRun implements Recorder.
func (r *MemoryRecorder) RecordRun(_ context.Context, run ir.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

// RecordDispatch implements Recorder.
func (r *MemoryRecorder) RecordDispatch(_ context.Context, d ir.Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches = append(r.dispatches, d)
	return nil
}

// Runs returns a copy of the recorded runs.
func (r *MemoryRecorder) Runs() []ir.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.runs)
}

// Dispatches returns the recorded dispatches ordered by Seq.
func (r *MemoryRecorder) Dispatches() []ir.Dispatch {
	r.mu.Lock()
	out := slices.Clone(r.dispatches)
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b ir.Dispatch) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out
}

// Reset drops everything recorded so far.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = nil
	r.dispatches = nil
}
