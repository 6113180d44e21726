package executor

import (
	"cmp"
	"context"
	"runtime/debug"
	"slices"
	"time"

	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/rcl"
)

// pass runs one wait followed by one dispatch over what became ready. It
// returns the number of callbacks started.
func (e *Executor) pass(ctx context.Context, timeout time.Duration) (int, error) {
	e.runOnce.Do(func() { e.recordRun(ctx) })

	entities := e.waitSet()
	e.setState(Waiting)
	ready, err := e.wait.Wait(ctx, entities, []*rcl.WaitHandle{&e.interrupt}, timeout)
	if err != nil {
		e.setState(Idle)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		e.waitErrors.Add(1)
		return 0, &Error{
			Code:    ErrCodeWaitPrimitiveFailure,
			Message: "wait primitive failed",
			Err:     err,
		}
	}
	e.passes.Add(1)
	if e.isShutdown() {
		return 0, nil
	}

	e.setState(Dispatching)
	n := e.dispatch(ready)
	e.setState(Idle)
	return n, nil
}

// waitSet lists the entities of all registered nodes whose group would let
// them start now, in registration order. Entities refused by their group
// are left out so that their readiness does not spin the loop; the
// completion of the blocking sibling wakes the executor instead. With every
// worker busy the set is empty for the same reason.
func (e *Executor) waitSet() []rcl.Waitable {
	if e.pool.Full() {
		return nil
	}
	var out []rcl.Waitable
	for _, n := range e.Nodes() {
		for _, w := range n.Entities() {
			if w.CallbackGroup().CanExecute(w) {
				out = append(out, w)
			}
		}
	}
	return out
}

// order sorts ready entities least recently dispatched first. Ties, which
// include every entity never dispatched, keep registration order.
func (e *Executor) order(ready []rcl.Waitable) []rcl.Waitable {
	e.mu.Lock()
	last := make([]int64, len(ready))
	for i, w := range ready {
		last[i] = e.lastDispatch[w.GID()]
	}
	e.mu.Unlock()

	idx := make([]int, len(ready))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(last[a], last[b])
	})

	out := make([]rcl.Waitable, len(ready))
	for i, j := range idx {
		out[i] = ready[j]
	}
	return out
}

// dispatch selects and starts ready entities. Selection happens only on the
// spin goroutine; CallbackGroup.Begin checks and records the group slot in
// one step, so two members of a MutuallyExclusive group are never selected
// together.
func (e *Executor) dispatch(ready []rcl.Waitable) int {
	started := 0
	for _, w := range e.order(ready) {
		if e.isShutdown() {
			break
		}
		if !e.pool.TryAcquire() {
			// Every worker is busy. The rest stay ready for the next pass.
			break
		}
		group := w.CallbackGroup()
		if !group.Begin(w) {
			e.pool.Release()
			continue
		}
		task, ok := w.Take()
		if !ok {
			group.End(w)
			e.pool.Release()
			e.spurious.Add(1)
			continue
		}

		seq := e.clock.Next()
		e.mu.Lock()
		e.lastDispatch[w.GID()] = seq
		e.mu.Unlock()
		started++

		if e.pool == nil {
			e.invoke(w, task, seq)
			continue
		}
		e.inflight.Add(1)
		go func() {
			defer e.inflight.Done()
			e.invoke(w, task, seq)
			e.pool.Release()
			e.Wake()
		}()
	}
	return started
}

// invoke runs one callback, releases its group slot and records the result.
func (e *Executor) invoke(w rcl.Waitable, task rcl.Task, seq int64) {
	group := w.CallbackGroup()
	startedAt := time.Now()
	err := safeCall(context.WithValue(e.runCtx, callbackKey{}, e), task)
	endSeq := e.clock.Next()
	group.End(w)
	finishedAt := time.Now()

	node := w.Node().FullyQualifiedName()
	d := ir.Dispatch{
		RunID:      e.runID,
		ExecutorID: e.id,
		Node:       node,
		EntityID:   w.GID(),
		EntityName: w.Name(),
		EntityKind: string(w.Kind()),
		GroupID:    group.ID(),
		GroupKind:  group.Kind().String(),
		Seq:        seq,
		EndSeq:     endSeq,
		Outcome:    ir.OutcomeOK,
		StartedAt:  startedAt.UnixNano(),
		FinishedAt: finishedAt.UnixNano(),
	}
	e.dispatched.Add(1)

	if err != nil {
		d.Outcome = ir.OutcomeError
		e.failed.Add(1)
		if IsPanic(err) {
			d.Outcome = ir.OutcomePanic
			e.panicked.Add(1)
		}
		d.Error = err.Error()
		e.onError(e.runCtx, &Error{
			Code:       ErrCodeCallbackInvocation,
			Message:    "callback failed",
			Node:       node,
			Entity:     w.Name(),
			EntityKind: string(w.Kind()),
			Seq:        seq,
			Err:        err,
		})
	}

	e.record(d)
}

// callbackKey marks the context handed to callbacks with the executor
// running them.
type callbackKey struct{}

func (e *Executor) inCallback(ctx context.Context) bool {
	owner, _ := ctx.Value(callbackKey{}).(*Executor)
	return owner == e
}

// safeCall runs task, turning a panic into a *PanicError.
func safeCall(ctx context.Context, task rcl.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

func (e *Executor) record(d ir.Dispatch) {
	if e.recorder == nil {
		return
	}
	id, err := ir.DispatchID(d.RunID, d.EntityID, d.Seq)
	if err != nil {
		e.logger.Warn("dispatch id", "seq", d.Seq, "error", err)
		return
	}
	d.ID = id
	if err := e.recorder.RecordDispatch(context.WithoutCancel(e.runCtx), d); err != nil {
		e.logger.Warn("record dispatch failed", "seq", d.Seq, "error", err)
	}
}

func (e *Executor) recordRun(ctx context.Context) {
	if e.recorder == nil {
		return
	}
	run := ir.Run{
		ID:            e.runID,
		ExecutorID:    e.id,
		ExecutorKind:  string(e.kind),
		Workers:       e.workers,
		Source:        e.source,
		StartedAt:     time.Now().UnixNano(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := e.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("record run failed", "run_id", e.runID, "error", err)
	}
}
