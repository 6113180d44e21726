package launch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/rcl"
	"github.com/roach88/rclgo/internal/testutil"
)

const relaySource = `
nodes: source: {
	publishers: raw: topic: "raw"
	timers: tick: {period: "100ms", publish: "raw"}
}
nodes: filter: {
	groups: serial: kind: "mutually_exclusive"
	publishers: clean: topic: "clean"
	subscriptions: raw: {topic: "raw", publish: "clean", group: "serial"}
	guards: poke: group: "serial"
}
nodes: sink: {
	subscriptions: clean: topic: "clean"
	services: echo: {}
	clients: ask: service: "echo"
}
`

type fixture struct {
	sys   *System
	clock *testutil.SimClock
	rec   *executor.MemoryRecorder
}

func newFixture(t *testing.T, src string) *fixture {
	t.Helper()
	desc, err := LoadBytes("relay.cue", []byte(src))
	require.NoError(t, err)

	clock, err := testutil.NewSimClock(0)
	require.NoError(t, err)
	rec := executor.NewMemoryRecorder()

	sys, err := Build(testutil.NewContext(t), desc,
		WithClock(clock.Clock()),
		WithExecutorOptions(executor.WithRecorder(rec)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close(context.Background()) })
	return &fixture{sys: sys, clock: clock, rec: rec}
}

func (f *fixture) spinOnce(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sys.Executor.SpinOnce(context.Background(), 0))
}

func (f *fixture) entity(t *testing.T, node, name string) *Entity {
	t.Helper()
	e, err := f.sys.Entity(node, name)
	require.NoError(t, err)
	return e
}

func entityNames(ds []ir.Dispatch) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Node + "/" + d.EntityName
	}
	return out
}

func TestBuild_CreatesGraph(t *testing.T) {
	f := newFixture(t, relaySource)

	nodes := f.sys.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "/filter", nodes[0].FullyQualifiedName())
	assert.Equal(t, "/sink", nodes[1].FullyQualifiedName())
	assert.Equal(t, "/source", nodes[2].FullyQualifiedName())
	assert.Equal(t, 6, f.sys.Entities())
	assert.Len(t, f.sys.Executor.Nodes(), 3)

	graph := f.sys.Context.Graph()
	assert.Equal(t, 1, graph.CountPublishers("/raw"))
	assert.Equal(t, 1, graph.CountSubscribers("/clean"))

	filter, ok := f.sys.Node("filter")
	require.True(t, ok)
	sub := f.entity(t, "filter", "raw")
	poke := f.entity(t, "filter", "poke")
	assert.Same(t, sub.Waitable.CallbackGroup(), poke.Waitable.CallbackGroup())
	assert.NotSame(t, filter.DefaultCallbackGroup(), sub.Waitable.CallbackGroup())
	assert.Equal(t, rcl.KindSubscription, sub.Kind)
}

func TestBuild_TimerRelayChain(t *testing.T) {
	f := newFixture(t, relaySource)

	f.spinOnce(t)
	assert.Empty(t, f.rec.Dispatches())

	require.NoError(t, f.clock.Advance(100*time.Millisecond))
	f.spinOnce(t) // tick publishes raw
	f.spinOnce(t) // filter relays to clean
	f.spinOnce(t) // sink receives

	assert.Equal(t, []string{"/source/tick", "/filter/raw", "/sink/clean"}, entityNames(f.rec.Dispatches()))
	assert.Equal(t, int64(1), f.entity(t, "source", "tick").Calls())
	assert.Equal(t, int64(1), f.entity(t, "sink", "clean").Calls())
}

func TestBuild_FailNext(t *testing.T) {
	f := newFixture(t, relaySource)
	poke := f.entity(t, "filter", "poke")
	poke.FailNext(1)

	require.NoError(t, f.sys.Trigger("filter", "poke"))
	f.spinOnce(t)
	require.NoError(t, f.sys.Trigger("filter", "poke"))
	f.spinOnce(t)

	ds := f.rec.Dispatches()
	require.Len(t, ds, 2)
	assert.Equal(t, ir.OutcomeError, ds[0].Outcome)
	assert.Contains(t, ds[0].Error, ErrInjected.Error())
	assert.Equal(t, ir.OutcomeOK, ds[1].Outcome)
	assert.Equal(t, int64(2), poke.Calls())
}

func TestBuild_PanicNext(t *testing.T) {
	f := newFixture(t, relaySource)
	f.entity(t, "filter", "poke").PanicNext(1)

	require.NoError(t, f.sys.Trigger("filter", "poke"))
	f.spinOnce(t)

	ds := f.rec.Dispatches()
	require.Len(t, ds, 1)
	assert.Equal(t, ir.OutcomePanic, ds[0].Outcome)
	assert.Contains(t, ds[0].Error, "injected panic")
}

func TestBuild_ServiceCall(t *testing.T) {
	f := newFixture(t, relaySource)

	fut, err := f.sys.Call("sink", "ask", "ping")
	require.NoError(t, err)
	ok, err := f.sys.Executor.SpinUntilFutureComplete(context.Background(), fut, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := fut.Result()
	require.NoError(t, err)
	assert.Equal(t, "ping", res)
	assert.Equal(t, []string{"/sink/echo", "/sink/ask"}, entityNames(f.rec.Dispatches()))
}

func TestBuild_Publish(t *testing.T) {
	f := newFixture(t, relaySource)

	require.NoError(t, f.sys.Publish("filter", "clean", nil))
	f.spinOnce(t)
	assert.Equal(t, int64(1), f.entity(t, "sink", "clean").Calls())

	assert.Error(t, f.sys.Publish("filter", "nope", nil))
}

func TestBuild_Lookups(t *testing.T) {
	f := newFixture(t, relaySource)

	_, err := f.sys.Entity("filter", "missing")
	assert.Error(t, err)
	assert.Error(t, f.sys.Trigger("filter", "raw"))
	_, err = f.sys.Call("sink", "missing", 1)
	assert.Error(t, err)
	_, ok := f.sys.Node("missing")
	assert.False(t, ok)
}

func TestBuild_CustomGroupAndExecutorKind(t *testing.T) {
	src := `
executor: {kind: "multi_threaded", workers: 3}
nodes: pool: {
	groups: limited: {kind: "custom", max_concurrency: 2}
	guards: a: group: "limited"
}
`
	f := newFixture(t, src)
	assert.Equal(t, executor.MultiThreaded, f.sys.Executor.Kind())
	assert.Equal(t, 3, f.sys.Executor.Workers())

	g := f.entity(t, "pool", "a").Waitable.CallbackGroup()
	assert.Equal(t, rcl.Custom, g.Kind())
	assert.Equal(t, "max_concurrency(2)", g.Policy().Name())
}

func TestBuild_ParametersAndNamespace(t *testing.T) {
	desc, err := LoadFile(filepath.Join("testdata", "talker.cue"))
	require.NoError(t, err)
	sys, err := Build(testutil.NewContext(t), desc)
	require.NoError(t, err)
	defer sys.Close(context.Background())

	talker, ok := sys.Node("talker")
	require.True(t, ok)
	assert.Equal(t, "/demo/talker", talker.FullyQualifiedName())
	v, ok := talker.Parameter("rate")
	require.True(t, ok)
	assert.Equal(t, "10", v)
}

func TestBuild_RejectsInvalid(t *testing.T) {
	_, err := Build(testutil.NewContext(t), &Description{})
	var errs Errors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, ErrCodeNoNodes, errs[0].Code)
}

func TestBuild_FailsOnShutdownContext(t *testing.T) {
	rctx := testutil.NewContext(t)
	require.NoError(t, rctx.Shutdown())

	desc, err := LoadBytes("x.cue", []byte(`nodes: n: {}`))
	require.NoError(t, err)
	_, err = Build(rctx, desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch node n")
}

func TestBuild_WorkHonorsCancellation(t *testing.T) {
	src := `nodes: n: guards: slow: work: "1h"`
	f := newFixture(t, src)
	slow := f.entity(t, "n", "slow")
	require.NoError(t, f.sys.Trigger("n", "slow"))

	done := make(chan error, 1)
	go func() { done <- f.sys.Executor.SpinOnce(context.Background(), 0) }()

	require.Eventually(t, func() bool {
		return slow.Calls() == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = f.sys.Executor.Shutdown(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("spin did not return after shutdown")
	}
	ds := f.rec.Dispatches()
	require.Len(t, ds, 1)
	assert.Equal(t, ir.OutcomeError, ds[0].Outcome)
}
