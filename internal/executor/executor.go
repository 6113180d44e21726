package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/rclgo/internal/logging"
	"github.com/roach88/rclgo/internal/rcl"
)

// Kind names the executor variant.
type Kind string

const (
	// SingleThreaded runs every callback inline on the spin goroutine.
	SingleThreaded Kind = "single_threaded"
	// MultiThreaded runs callbacks on a bounded pool of worker goroutines.
	MultiThreaded Kind = "multi_threaded"
)

// ParseKind is the inverse of Kind's string value. An empty string selects
// SingleThreaded.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case SingleThreaded, "":
		return SingleThreaded, nil
	case MultiThreaded:
		return MultiThreaded, nil
	default:
		return "", fmt.Errorf("unknown executor kind %q", s)
	}
}

// State is the executor's lifecycle state.
type State int32

const (
	Idle State = iota
	Waiting
	Dispatching
	ShuttingDown
	Terminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Dispatching:
		return "dispatching"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Executor waits for the entities of its nodes to become ready and runs
// their callbacks, respecting callback group exclusion.
//
// Thread-safety model:
//   - AddNode, RemoveNode, Wake, Shutdown, State, Stats: safe from any goroutine
//   - Spin, SpinOnce, SpinUntil: one caller at a time, others get ErrAlreadySpinning
//
// The executor does not own its nodes or their entities. It holds them only
// while they are registered.
type Executor struct {
	id       string
	kind     Kind
	workers  int
	logger   *slog.Logger
	wait     WaitPrimitive
	onError  ErrorHandler
	recorder Recorder
	clock    *Clock
	ids      rcl.IDGenerator
	runID    string
	source   string

	interrupt rcl.WaitHandle
	pool      *semaphore
	state     atomic.Int32

	mu           sync.Mutex
	rctx         *rcl.Context
	watched      map[*rcl.Context]bool
	nodes        []*rcl.Node
	lastDispatch map[string]int64
	futures      map[*rcl.Future]struct{}

	// spinMu is held by the goroutine running a spin loop, and by the
	// shutdown sequence once that loop has exited.
	spinMu   sync.Mutex
	inflight sync.WaitGroup

	runCtx    context.Context
	cancelRun context.CancelFunc
	runOnce   sync.Once

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	terminated   chan struct{}

	passes     atomic.Int64
	dispatched atomic.Int64
	failed     atomic.Int64
	panicked   atomic.Int64
	spurious   atomic.Int64
	waitErrors atomic.Int64
}

// NewSingleThreaded creates an executor that runs callbacks inline.
func NewSingleThreaded(opts ...Option) *Executor {
	return newExecutor(SingleThreaded, 1, opts)
}

// NewMultiThreaded creates an executor running up to workers callbacks at
// once. workers <= 0 selects runtime.NumCPU().
func NewMultiThreaded(workers int, opts ...Option) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return newExecutor(MultiThreaded, workers, opts)
}

// New creates an executor of the given kind.
func New(kind Kind, workers int, opts ...Option) *Executor {
	if kind == MultiThreaded {
		return NewMultiThreaded(workers, opts...)
	}
	return NewSingleThreaded(opts...)
}

func newExecutor(kind Kind, workers int, opts []Option) *Executor {
	e := &Executor{
		kind:         kind,
		workers:      workers,
		wait:         FanInWait{},
		watched:      make(map[*rcl.Context]bool),
		lastDispatch: make(map[string]int64),
		futures:      make(map[*rcl.Future]struct{}),
		shutdownCh:   make(chan struct{}),
		terminated:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = rcl.UUIDv7Generator{}
	}
	if e.clock == nil {
		e.clock = NewClock()
	}
	e.id = e.ids.Generate()
	if e.runID == "" {
		e.runID = e.ids.Generate()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "executor", "executor_id", e.id)
	if e.onError == nil {
		e.onError = throttledErrorLog(e.logger)
	}
	if kind == MultiThreaded {
		e.pool = newSemaphore(workers)
	}
	e.runCtx, e.cancelRun = context.WithCancel(context.Background())
	if e.rctx != nil {
		e.watchContext(e.rctx)
	}
	return e
}

// throttledErrorLog logs callback failures at most a few times per second.
func throttledErrorLog(logger *slog.Logger) ErrorHandler {
	th := logging.NewThrottle(time.Second, 5)
	return func(ctx context.Context, err *Error) {
		th.Log(ctx, logger, slog.LevelError, "callback failed",
			"node", err.Node,
			"entity", err.Entity,
			"kind", err.EntityKind,
			"seq", err.Seq,
			"error", err.Err,
		)
	}
}

// ID returns the executor's unique id.
func (e *Executor) ID() string { return e.id }

// Kind returns the executor variant.
func (e *Executor) Kind() Kind { return e.kind }

// Workers returns the worker pool size, 1 for SingleThreaded.
func (e *Executor) Workers() int { return e.workers }

// RunID returns the id under which dispatches are recorded.
func (e *Executor) RunID() string { return e.runID }

// Wake interrupts a blocked wait. Safe from any goroutine; wakes raised
// while nothing waits are latched for the next wait.
func (e *Executor) Wake() {
	e.interrupt.Signal()
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	return State(e.state.Load())
}

// setState moves between the running states. It never leaves ShuttingDown
// or Terminated.
func (e *Executor) setState(s State) {
	for {
		cur := e.state.Load()
		if State(cur) >= ShuttingDown {
			return
		}
		if e.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (e *Executor) isShutdown() bool {
	select {
	case <-e.shutdownCh:
		return true
	default:
		return false
	}
}

func (e *Executor) watchContext(rctx *rcl.Context) {
	if e.watched[rctx] {
		return
	}
	e.watched[rctx] = true
	rctx.OnShutdown(e.Wake)
}

// stopped reports whether spinning should end: the executor is shutting
// down or its rcl context is no longer running.
func (e *Executor) stopped() bool {
	if e.isShutdown() {
		return true
	}
	e.mu.Lock()
	rctx := e.rctx
	e.mu.Unlock()
	return rctx != nil && !rctx.OK()
}

// AddNode registers n. Its entities join the next wait set; a blocked wait
// is interrupted to pick them up. Adding a node twice is a no-op. A node
// attached to another executor is rejected with REGISTRATION_CONFLICT and
// keeps its original registration.
func (e *Executor) AddNode(n *rcl.Node) error {
	if e.isShutdown() {
		return ErrShutdown
	}
	if err := n.AttachExecutor(e); err != nil {
		if errors.Is(err, rcl.ErrNodeAttached) {
			owner := ""
			if ref := n.Executor(); ref != nil {
				owner = ref.ID()
			}
			return &Error{
				Code:    ErrCodeRegistrationConflict,
				Message: fmt.Sprintf("node %s already belongs to executor %s", n.FullyQualifiedName(), owner),
				Node:    n.FullyQualifiedName(),
				Err:     err,
			}
		}
		return err
	}

	e.mu.Lock()
	if e.isShutdown() {
		// terminate may already have released e.nodes.
		e.mu.Unlock()
		n.DetachExecutor(e)
		return ErrShutdown
	}
	if slices.Contains(e.nodes, n) {
		e.mu.Unlock()
		return nil
	}
	e.nodes = append(e.nodes, n)
	if e.rctx == nil {
		e.rctx = n.Context()
	}
	e.watchContext(n.Context())
	e.mu.Unlock()

	e.logger.Debug("node added", "node", n.FullyQualifiedName())
	e.Wake()
	return nil
}

// RemoveNode unregisters n. Callbacks of n already running finish normally.
// It reports whether n was registered.
func (e *Executor) RemoveNode(n *rcl.Node) bool {
	e.mu.Lock()
	idx := slices.Index(e.nodes, n)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}
	e.nodes = slices.Delete(e.nodes, idx, idx+1)
	for _, w := range n.Entities() {
		delete(e.lastDispatch, w.GID())
	}
	e.mu.Unlock()

	n.DetachExecutor(e)
	e.logger.Debug("node removed", "node", n.FullyQualifiedName())
	e.Wake()
	return true
}

// Nodes returns the registered nodes in registration order.
func (e *Executor) Nodes() []*rcl.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.nodes)
}

// beginSpin claims the spin loop. ok is false when the executor is shut
// down (err nil) or another goroutine is spinning.
func (e *Executor) beginSpin() (ok bool, err error) {
	if e.isShutdown() {
		return false, nil
	}
	if !e.spinMu.TryLock() {
		if e.isShutdown() {
			return false, nil
		}
		return false, ErrAlreadySpinning
	}
	if e.isShutdown() {
		e.spinMu.Unlock()
		return false, nil
	}
	return true, nil
}

// Spin dispatches callbacks until Shutdown, until the rcl context shuts
// down (both return nil) or until ctx is done (returns ctx.Err()). A wait
// primitive failure is returned as WAIT_PRIMITIVE_FAILURE.
func (e *Executor) Spin(ctx context.Context) error {
	ok, err := e.beginSpin()
	if !ok {
		return err
	}
	defer e.spinMu.Unlock()

	e.logger.Info("spin started", "kind", e.kind, "workers", e.workers)
	defer e.logger.Info("spin stopped")

	for {
		if e.stopped() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.pass(ctx, -1); err != nil {
			return err
		}
	}
}

// SpinOnce waits up to timeout for ready entities and dispatches them.
// A negative timeout blocks until something is dispatched; zero polls once.
// It returns after the first pass that dispatched at least one callback;
// wakeups that dispatch nothing keep waiting for the rest of the timeout.
// Expiry with nothing ready is not an error.
func (e *Executor) SpinOnce(ctx context.Context, timeout time.Duration) error {
	ok, err := e.beginSpin()
	if !ok {
		return err
	}
	defer e.spinMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if e.stopped() {
			return nil
		}
		remaining := timeout
		if timeout > 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil
			}
		}
		n, err := e.pass(ctx, remaining)
		if err != nil {
			return err
		}
		if n > 0 || timeout == 0 {
			return nil
		}
	}
}

// SpinUntil spins until cond returns true, the timeout expires, or the
// executor stops. It reports whether cond became true. cond is evaluated
// after every pass, including passes woken by callback completion.
func (e *Executor) SpinUntil(ctx context.Context, cond func() bool, timeout time.Duration) (bool, error) {
	ok, err := e.beginSpin()
	if !ok {
		return cond(), err
	}
	defer e.spinMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true, nil
		}
		if e.stopped() {
			return false, nil
		}
		remaining := timeout
		if timeout >= 0 {
			remaining = time.Until(deadline)
			if remaining <= 0 && timeout > 0 {
				return cond(), nil
			}
			if remaining < 0 {
				remaining = 0
			}
		}
		if _, err := e.pass(ctx, remaining); err != nil {
			return false, err
		}
		if timeout == 0 {
			return cond(), nil
		}
	}
}

// SpinUntilFutureComplete spins until f is done or the timeout expires.
// The future's completion wakes the executor even when it is completed
// outside of a callback. Repeated calls on one pending future register a
// single wake.
func (e *Executor) SpinUntilFutureComplete(ctx context.Context, f *rcl.Future, timeout time.Duration) (bool, error) {
	e.watchFuture(f)
	return e.SpinUntil(ctx, f.IsDone, timeout)
}

func (e *Executor) watchFuture(f *rcl.Future) {
	e.mu.Lock()
	if _, ok := e.futures[f]; ok {
		e.mu.Unlock()
		return
	}
	e.futures[f] = struct{}{}
	e.mu.Unlock()

	f.AddDoneCallback(func(*rcl.Future) {
		e.mu.Lock()
		delete(e.futures, f)
		e.mu.Unlock()
		e.Wake()
	})
}

// Shutdown stops the executor: a blocked wait is interrupted, no new pass
// starts, and callbacks already running complete. Nodes are then released
// and the state becomes Terminated.
//
// If ctx expires first, the context passed to running callbacks is canceled
// and ctx's error is returned; termination still completes once those
// callbacks return. Safe from any goroutine and idempotent.
//
// Called with the context a callback of this executor received, Shutdown
// only requests termination and returns, since termination waits for that
// callback. Callbacks holding no such context use RequestShutdown.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.RequestShutdown()
	if e.inCallback(ctx) {
		return nil
	}

	select {
	case <-e.terminated:
		return nil
	case <-ctx.Done():
		e.cancelRun()
		return fmt.Errorf("executor %s shutdown: %w", e.id, ctx.Err())
	}
}

// RequestShutdown starts shutdown without waiting for it to complete. Safe
// from any goroutine, including callbacks; wait on Terminated to observe
// completion.
func (e *Executor) RequestShutdown() {
	e.shutdownOnce.Do(func() {
		e.state.Store(int32(ShuttingDown))
		close(e.shutdownCh)
		e.logger.Info("shutdown requested")
		e.Wake()
		go e.terminate()
	})
}

// Terminated is closed once Shutdown has completed.
func (e *Executor) Terminated() <-chan struct{} {
	return e.terminated
}

func (e *Executor) terminate() {
	e.spinMu.Lock()
	defer e.spinMu.Unlock()
	e.inflight.Wait()

	e.mu.Lock()
	nodes := e.nodes
	e.nodes = nil
	e.mu.Unlock()
	for _, n := range nodes {
		n.DetachExecutor(e)
	}

	e.cancelRun()
	e.state.Store(int32(Terminated))
	close(e.terminated)
	e.logger.Info("executor terminated", "dispatched", e.dispatched.Load())
}

// Stats is a snapshot of executor counters.
type Stats struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Kind       Kind   `json:"kind"`
	State      string `json:"state"`
	Workers    int    `json:"workers"`
	Busy       int    `json:"busy"`
	Nodes      int    `json:"nodes"`
	Seq        int64  `json:"seq"`
	Passes     int64  `json:"passes"`
	Dispatched int64  `json:"dispatched"`
	Failed     int64  `json:"failed"`
	Panicked   int64  `json:"panicked"`
	Spurious   int64  `json:"spurious"`
	WaitErrors int64  `json:"wait_errors"`
}

// Stats returns a snapshot of the executor's counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	nodes := len(e.nodes)
	e.mu.Unlock()

	return Stats{
		ID:         e.id,
		RunID:      e.runID,
		Kind:       e.kind,
		State:      e.State().String(),
		Workers:    e.workers,
		Busy:       e.pool.InUse(),
		Nodes:      nodes,
		Seq:        e.clock.Current(),
		Passes:     e.passes.Load(),
		Dispatched: e.dispatched.Load(),
		Failed:     e.failed.Load(),
		Panicked:   e.panicked.Load(),
		Spurious:   e.spurious.Load(),
		WaitErrors: e.waitErrors.Load(),
	}
}
