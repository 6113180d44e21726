package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/launch"
	"github.com/roach88/rclgo/internal/rcl"
	"github.com/roach88/rclgo/internal/store"
	"github.com/roach88/rclgo/internal/testutil"
)

// idleTimeout bounds how long a multi-threaded spin_once step waits for
// the callbacks it started.
const idleTimeout = 5 * time.Second

// Harness is the scenario execution engine.
// It runs scenarios on simulated ROS time with sequential ids so that
// traces are reproducible.
type Harness struct {
	store  *store.Store
	sys    *launch.System
	clock  *testutil.SimClock
	logger *slog.Logger
	calls  []pendingCall
}

type pendingCall struct {
	step   int
	call   *CallStep
	future *rcl.Future
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
	store  *store.Store
}

// WithLogger sets the logger for the scenario run. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithStore records the run into st instead of a fresh in-memory store.
func WithStore(st *store.Store) Option {
	return func(c *runConfig) {
		c.store = st
	}
}

// RunID returns the deterministic run id of a scenario.
func RunID(s *Scenario) string {
	return "scenario-" + s.Name
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh context and, unless WithStore is given, a
// fresh in-memory database. Execution flow:
//  1. Build the node graph on a simulated ROS time clock
//  2. Execute the steps
//  3. Shut the executor down so every dispatch is recorded
//  4. Check call expectations and evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := cfg.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	desc, err := description(scenario)
	if err != nil {
		return nil, err
	}

	rctx := rcl.NewContext()
	if err := rctx.Init(
		rcl.WithDomainID(0),
		rcl.WithLogger(cfg.logger),
		rcl.WithIDGenerator(rcl.NewSequentialGenerator("gid")),
		rcl.WithSignalHandlers(rcl.SignalHandlerNo),
	); err != nil {
		return nil, fmt.Errorf("init context: %w", err)
	}
	defer rctx.TryShutdown()

	clock, err := testutil.NewSimClock(0)
	if err != nil {
		return nil, fmt.Errorf("sim clock: %w", err)
	}

	runID := RunID(scenario)
	sys, err := launch.Build(rctx, desc,
		launch.WithClock(clock.Clock()),
		launch.WithLogger(cfg.logger),
		launch.WithExecutorOptions(
			executor.WithRecorder(st),
			executor.WithRunID(runID),
			executor.WithSource(scenarioSource(scenario)),
			executor.WithIDGenerator(rcl.NewSequentialGenerator("executor")),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build scenario graph: %w", err)
	}

	h := &Harness{
		store:  st,
		sys:    sys,
		clock:  clock,
		logger: cfg.logger.With("component", "harness", "scenario", scenario.Name),
	}

	stepErr := h.executeSteps(ctx, scenario.Steps)
	if err := sys.Close(ctx); err != nil {
		return nil, fmt.Errorf("shutdown: %w", err)
	}
	if stepErr != nil {
		return nil, stepErr
	}

	result := NewResult(runID)
	result.Trace, err = st.ListDispatches(ctx, store.DispatchFilter{RunID: runID})
	if err != nil {
		return nil, err
	}
	result.TraceHash, err = ir.TraceHash(result.Trace)
	if err != nil {
		return nil, err
	}

	for _, msg := range h.checkCalls() {
		result.AddError(msg)
	}
	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		RunID: runID,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"pass", result.Pass,
		"dispatches", len(result.Trace),
		"trace_hash", result.TraceHash,
	)
	return result, nil
}

// RunFile loads and runs a scenario file.
func RunFile(ctx context.Context, path string, opts ...Option) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario, opts...)
	return scenario, result, err
}

func scenarioSource(s *Scenario) string {
	if s.Path != "" {
		return s.Path
	}
	return "scenario:" + s.Name
}

// description loads the scenario's node graph. Inline nodes go through
// the same schema as launch files.
func description(s *Scenario) (*launch.Description, error) {
	var (
		desc *launch.Description
		err  error
	)
	if s.Launch != "" {
		desc, err = launch.LoadFile(s.Launch)
	} else {
		var src []byte
		src, err = json.Marshal(map[string]any{"nodes": s.Nodes})
		if err != nil {
			return nil, fmt.Errorf("encode nodes: %w", err)
		}
		desc, err = launch.LoadBytes(scenarioSource(s), src)
	}
	if err != nil {
		return nil, fmt.Errorf("load scenario graph: %w", err)
	}

	if s.Executor != nil {
		if s.Executor.Kind != "" {
			desc.Executor.Kind = s.Executor.Kind
		}
		desc.Executor.Workers = s.Executor.Workers
		if errs := launch.Check(desc); len(errs) > 0 {
			return nil, fmt.Errorf("executor override: %w", errs)
		}
	}
	return desc, nil
}

// executeSteps runs all steps in order. An error aborts the scenario.
func (h *Harness) executeSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := h.executeStep(ctx, i, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Kind(), err)
		}
		h.logger.Debug("step completed", "step", i, "kind", step.Kind())
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step) error {
	switch step.Kind() {
	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		return h.clock.Advance(d)

	case StepSpinOnce:
		for n := 0; n < step.SpinOnce; n++ {
			if err := h.sys.Executor.SpinOnce(ctx, 0); err != nil {
				return err
			}
			if err := h.waitIdle(ctx); err != nil {
				return err
			}
		}
		return nil

	case StepPublish:
		return h.sys.Publish(step.Publish.Node, step.Publish.Publisher, step.Publish.Message)

	case StepTrigger:
		return h.sys.Trigger(step.Trigger.Node, step.Trigger.Guard)

	case StepFailNext:
		e, err := h.sys.Entity(step.FailNext.Node, step.FailNext.Entity)
		if err != nil {
			return err
		}
		n := step.FailNext.Count
		if n == 0 {
			n = 1
		}
		if step.FailNext.Panic {
			e.PanicNext(n)
		} else {
			e.FailNext(n)
		}
		return nil

	case StepCall:
		f, err := h.sys.Call(step.Call.Node, step.Call.Client, step.Call.Request)
		if err != nil {
			return err
		}
		h.calls = append(h.calls, pendingCall{step: i, call: step.Call, future: f})
		return nil

	default:
		return fmt.Errorf("invalid step")
	}
}

// waitIdle waits for callbacks started on worker goroutines. A
// single-threaded executor is always idle once SpinOnce returns.
func (h *Harness) waitIdle(ctx context.Context) error {
	if h.sys.Executor.Kind() != executor.MultiThreaded {
		return nil
	}
	deadline := time.Now().Add(idleTimeout)
	for h.sys.Executor.Stats().Busy > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("callbacks still running after %s", idleTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return nil
}

// checkCalls verifies call expectations against the completed futures.
func (h *Harness) checkCalls() []string {
	var errs []string
	for _, pc := range h.calls {
		if pc.call.Expect == nil && !pc.call.ExpectError {
			continue
		}
		label := fmt.Sprintf("call at step %d (%s/%s)", pc.step, pc.call.Node, pc.call.Client)
		if !pc.future.IsDone() {
			errs = append(errs, label+": no response")
			continue
		}
		res, err := pc.future.Result()
		switch {
		case pc.call.ExpectError && err == nil:
			errs = append(errs, fmt.Sprintf("%s: expected an error, got response %v", label, res))
		case pc.call.ExpectError:
		case err != nil:
			errs = append(errs, fmt.Sprintf("%s: %v", label, err))
		case !reflect.DeepEqual(res, pc.call.Expect):
			errs = append(errs, fmt.Sprintf("%s: expected response %v (%T), got %v (%T)", label, pc.call.Expect, pc.call.Expect, res, res))
		}
	}
	return errs
}
