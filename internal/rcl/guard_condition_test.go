package rcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardCondition_ReadyOncePerTrigger(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "watchdog")

	calls := 0
	gc, err := n.CreateGuardCondition(func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, KindGuardCondition, gc.Kind())
	assert.Same(t, n.DefaultCallbackGroup(), gc.CallbackGroup())
	assert.False(t, gc.IsReady())

	require.NoError(t, gc.Trigger())
	require.NoError(t, gc.Trigger())
	assert.True(t, gc.IsReady())

	for range 2 {
		task, ok := gc.Take()
		require.True(t, ok)
		require.NoError(t, task(context.Background()))
	}
	assert.Equal(t, 2, calls)
	assert.False(t, gc.IsReady())

	_, ok := gc.Take()
	assert.False(t, ok)
}

func TestGuardCondition_TriggerSignalsWaitHandle(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "watchdog")

	gc, err := n.CreateGuardCondition(nil)
	require.NoError(t, err)

	wake := make(chan struct{}, 1)
	gc.WaitHandle().Attach(wake)
	defer gc.WaitHandle().Detach(wake)

	require.NoError(t, gc.Trigger())
	select {
	case <-wake:
	default:
		t.Fatal("trigger did not signal the attached waiter")
	}

	task, ok := gc.Take()
	require.True(t, ok)
	assert.NoError(t, task(context.Background()))
}

func TestGuardCondition_Destroy(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "watchdog")

	gc, err := n.CreateGuardCondition(nil)
	require.NoError(t, err)
	require.NoError(t, gc.Trigger())

	require.NoError(t, gc.Destroy())
	assert.True(t, gc.IsDestroyed())
	assert.False(t, gc.IsReady())

	_, ok := gc.Take()
	assert.False(t, ok)
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(gc.Trigger()))
	assert.Equal(t, ErrCodeInvalidHandle, CodeOf(gc.Destroy()))
}
