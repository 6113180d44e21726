package rcl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOverrideClock(t *testing.T, at time.Duration) *Clock {
	t.Helper()
	clock, err := NewClock(ROSTime)
	require.NoError(t, err)
	require.NoError(t, clock.SetROSTimeOverride(Time(at)))
	require.NoError(t, clock.EnableROSTimeOverride())
	return clock
}

func TestTimer_DrivenByOverriddenTime(t *testing.T) {
	c := newTestContext(t)
	clock := newOverrideClock(t, 0)
	n := newTestNode(t, c, "sim", WithNodeClock(clock))

	calls := 0
	timer, err := n.CreateTimer(time.Second, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, time.Second, timer.Period())

	assert.False(t, timer.IsReady())
	_, ok := timer.TimeUntilReady()
	assert.False(t, ok, "wall clock waits cannot make a simulated timer ready")

	require.NoError(t, clock.SetROSTimeOverride(Time(time.Second)))
	assert.True(t, timer.IsReady())
	d, ok := timer.TimeUntilReady()
	assert.True(t, ok)
	assert.Zero(t, d)

	drain(t, n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Second, timer.TimeUntilNextCall())
}

func TestTimer_SkipsMissedPeriods(t *testing.T) {
	c := newTestContext(t)
	clock := newOverrideClock(t, 0)
	n := newTestNode(t, c, "skipper")

	calls := 0
	timer, err := n.CreateTimer(time.Second, func(context.Context) error {
		calls++
		return nil
	}, WithClock(clock))
	require.NoError(t, err)

	require.NoError(t, clock.SetROSTimeOverride(Time(3500*time.Millisecond)))
	drain(t, n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 500*time.Millisecond, timer.TimeUntilNextCall())
	assert.Zero(t, timer.TimeSinceLastCall())
}

func TestTimer_CancelAndReset(t *testing.T) {
	c := newTestContext(t)
	clock := newOverrideClock(t, 0)
	n := newTestNode(t, c, "cancel", WithNodeClock(clock))

	timer, err := n.CreateTimer(time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)

	timer.Cancel()
	assert.True(t, timer.IsCanceled())
	require.NoError(t, clock.SetROSTimeOverride(Time(5*time.Second)))
	assert.False(t, timer.IsReady())
	_, ok := timer.Take()
	assert.False(t, ok)
	_, ok = timer.TimeUntilReady()
	assert.False(t, ok)

	timer.Reset()
	assert.False(t, timer.IsCanceled())
	assert.False(t, timer.IsReady())
	assert.Equal(t, time.Second, timer.TimeUntilNextCall())
}

func TestTimer_BackwardJumpRestartsPeriod(t *testing.T) {
	c := newTestContext(t)
	clock := newOverrideClock(t, 10*time.Second)
	n := newTestNode(t, c, "rewind", WithNodeClock(clock))

	timer, err := n.CreateTimer(time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, clock.SetROSTimeOverride(Time(2*time.Second)))
	assert.False(t, timer.IsReady())
	assert.Equal(t, time.Second, timer.TimeUntilNextCall())
}

func TestTimer_OverrideActivationKeepsRemainingTime(t *testing.T) {
	c := newTestContext(t)
	clock, err := NewClock(ROSTime)
	require.NoError(t, err)
	n := newTestNode(t, c, "switch", WithNodeClock(clock))

	timer, err := n.CreateTimer(time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)

	require.NoError(t, clock.EnableROSTimeOverride())
	remaining := timer.TimeUntilNextCall()
	assert.LessOrEqual(t, remaining, time.Second)
	assert.Greater(t, remaining, 500*time.Millisecond)
}

func TestTimer_SteadyClockBoundsWait(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "steady")
	steady, err := NewClock(SteadyTime)
	require.NoError(t, err)

	timer, err := n.CreateTimer(20*time.Millisecond, func(context.Context) error { return nil }, WithClock(steady))
	require.NoError(t, err)

	d, ok := timer.TimeUntilReady()
	assert.True(t, ok)
	assert.LessOrEqual(t, d, 20*time.Millisecond)

	require.Eventually(t, timer.IsReady, time.Second, 5*time.Millisecond)
}

func TestTimer_Validation(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "invalid")

	_, err := n.CreateTimer(0, func(context.Context) error { return nil })
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
	_, err = n.CreateTimer(time.Second, nil)
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestTimer_Destroy(t *testing.T) {
	c := newTestContext(t)
	clock := newOverrideClock(t, 0)
	n := newTestNode(t, c, "gone", WithNodeClock(clock))

	timer, err := n.CreateTimer(time.Second, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, timer.Destroy())

	require.NoError(t, clock.SetROSTimeOverride(Time(2*time.Second)))
	assert.False(t, timer.IsReady())
	assert.Empty(t, n.Entities())
	assert.True(t, IsInvalidHandle(timer.Destroy()))
}
