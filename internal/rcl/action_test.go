package rcl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionGoalState(t *testing.T) {
	tests := []struct {
		from  GoalStatus
		event GoalEvent
		want  GoalStatus
		ok    bool
	}{
		{GoalStatusAccepted, GoalEventExecute, GoalStatusExecuting, true},
		{GoalStatusAccepted, GoalEventCancelGoal, GoalStatusCanceling, true},
		{GoalStatusAccepted, GoalEventSucceed, GoalStatusAccepted, false},
		{GoalStatusExecuting, GoalEventCancelGoal, GoalStatusCanceling, true},
		{GoalStatusExecuting, GoalEventSucceed, GoalStatusSucceeded, true},
		{GoalStatusExecuting, GoalEventAbort, GoalStatusAborted, true},
		{GoalStatusExecuting, GoalEventCanceled, GoalStatusExecuting, false},
		{GoalStatusCanceling, GoalEventSucceed, GoalStatusSucceeded, true},
		{GoalStatusCanceling, GoalEventAbort, GoalStatusAborted, true},
		{GoalStatusCanceling, GoalEventCanceled, GoalStatusCanceled, true},
		{GoalStatusCanceling, GoalEventExecute, GoalStatusCanceling, false},
		{GoalStatusSucceeded, GoalEventAbort, GoalStatusSucceeded, false},
		{GoalStatusAborted, GoalEventExecute, GoalStatusAborted, false},
		{GoalStatusCanceled, GoalEventCancelGoal, GoalStatusCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"_"+tt.event.String(), func(t *testing.T) {
			got, err := TransitionGoalState(tt.from, tt.event)
			assert.Equal(t, tt.want, got)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, ErrCodeGoalEventInvalid, CodeOf(err))
			}
		})
	}
}

// runNext takes one unit of work from w and runs it.
func runNext(t *testing.T, w Waitable) error {
	t.Helper()
	task, ok := w.Take()
	require.True(t, ok, "%s has nothing to take", w.Name())
	return task(context.Background())
}

func futureResult(t *testing.T, f *Future) any {
	t.Helper()
	require.True(t, f.IsDone())
	v, err := f.Result()
	require.NoError(t, err)
	return v
}

func TestAction_GoalWithFeedback(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "fibonacci")

	server, err := n.CreateActionServer("fib", "example/Fibonacci", ActionServerCallbacks{
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) {
			order := gh.Goal().(int)
			seq := []int{0, 1}
			for len(seq) < order {
				seq = append(seq, seq[len(seq)-1]+seq[len(seq)-2])
				if err := gh.PublishFeedback(len(seq)); err != nil {
					return nil, err
				}
			}
			return seq, gh.Succeed()
		},
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("fib", "example/Fibonacci")
	require.NoError(t, err)
	assert.True(t, client.ServerIsReady())

	var feedback []any
	f, err := client.SendGoalAsync(5, func(fb any) { feedback = append(feedback, fb) })
	require.NoError(t, err)

	assert.Empty(t, drain(t, n))

	gh := futureResult(t, f).(*ClientGoalHandle)
	assert.True(t, gh.Accepted())
	res := futureResult(t, gh.ResultFuture()).(*GoalResult)
	assert.Equal(t, GoalStatusSucceeded, res.Status)
	assert.Equal(t, []int{0, 1, 1, 2, 3}, res.Result)
	assert.Equal(t, []any{3, 4, 5}, feedback)

	sgh, ok := server.Goal(gh.GoalID())
	require.True(t, ok)
	assert.False(t, sgh.IsActive())
	assert.Equal(t, ErrCodeGoalEventInvalid, CodeOf(sgh.PublishFeedback(6)))
}

func TestAction_GoalRejected(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "picky")

	_, err := n.CreateActionServer("pick", "example/Pick", ActionServerCallbacks{
		Goal:    func(_ context.Context, goal any) bool { return goal != "bad" },
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) { return nil, gh.Succeed() },
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("pick", "example/Pick")
	require.NoError(t, err)

	f, err := client.SendGoalAsync("bad", nil)
	require.NoError(t, err)
	drain(t, n)

	gh := futureResult(t, f).(*ClientGoalHandle)
	assert.False(t, gh.Accepted())
	assert.Nil(t, gh.ResultFuture())
	_, err = gh.CancelGoalAsync()
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestAction_CancelDuringExecution(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "slow")

	executing := make(chan struct{})
	canceled := make(chan struct{})
	server, err := n.CreateActionServer("work", "example/Work", ActionServerCallbacks{
		Cancel: func(context.Context, *ServerGoalHandle) bool { return true },
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) {
			close(executing)
			<-canceled
			if gh.IsCancelRequested() {
				return "partial", gh.Canceled()
			}
			return "done", gh.Succeed()
		},
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("work", "example/Work")
	require.NoError(t, err)

	f, err := client.SendGoalAsync("job", nil)
	require.NoError(t, err)
	require.NoError(t, runNext(t, server)) // goal request
	require.NoError(t, runNext(t, client)) // goal response
	gh := futureResult(t, f).(*ClientGoalHandle)
	require.True(t, gh.Accepted())

	cancelFuture, err := gh.CancelGoalAsync()
	require.NoError(t, err)

	// Execution and the cancel request run concurrently, as they would in
	// a Reentrant group on a multi-threaded executor.
	execDone := make(chan error, 1)
	task, ok := server.Take()
	require.True(t, ok)
	go func() { execDone <- task(context.Background()) }()
	<-executing

	require.NoError(t, runNext(t, server)) // cancel request
	sgh, ok := server.Goal(gh.GoalID())
	require.True(t, ok)
	assert.Equal(t, GoalStatusCanceling, sgh.Status())
	close(canceled)
	require.NoError(t, <-execDone)

	drain(t, n)
	assert.Equal(t, true, futureResult(t, cancelFuture))
	res := futureResult(t, gh.ResultFuture()).(*GoalResult)
	assert.Equal(t, GoalStatusCanceled, res.Status)
	assert.Equal(t, "partial", res.Result)
}

func TestAction_CancelRejectedWithoutCallback(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "stubborn")

	server, err := n.CreateActionServer("work", "example/Work", ActionServerCallbacks{
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) { return nil, gh.Succeed() },
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("work", "example/Work")
	require.NoError(t, err)

	f, err := client.SendGoalAsync(1, nil)
	require.NoError(t, err)
	require.NoError(t, runNext(t, server))
	require.NoError(t, runNext(t, client))
	gh := futureResult(t, f).(*ClientGoalHandle)

	cf, err := gh.CancelGoalAsync()
	require.NoError(t, err)
	drain(t, n)
	assert.Equal(t, false, futureResult(t, cf))
	res := futureResult(t, gh.ResultFuture()).(*GoalResult)
	assert.Equal(t, GoalStatusSucceeded, res.Status)
}

func TestAction_UnfinishedGoalIsAborted(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "forgetful")
	boom := errors.New("boom")

	_, err := n.CreateActionServer("work", "example/Work", ActionServerCallbacks{
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) {
			if gh.Goal() == "fail" {
				return nil, boom
			}
			return "forgot", nil
		},
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("work", "example/Work")
	require.NoError(t, err)

	forgot, err := client.SendGoalAsync("forget", nil)
	require.NoError(t, err)
	failed, err := client.SendGoalAsync("fail", nil)
	require.NoError(t, err)

	errs := drain(t, n)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)

	res := futureResult(t, futureResult(t, forgot).(*ClientGoalHandle).ResultFuture()).(*GoalResult)
	assert.Equal(t, GoalStatusAborted, res.Status)
	assert.Equal(t, "forgot", res.Result)

	res = futureResult(t, futureResult(t, failed).(*ClientGoalHandle).ResultFuture()).(*GoalResult)
	assert.Equal(t, GoalStatusAborted, res.Status)
}

func TestAction_NoServer(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "alone")
	client, err := n.CreateActionClient("work", "example/Work")
	require.NoError(t, err)
	assert.False(t, client.ServerIsReady())

	_, err = client.SendGoalAsync(1, nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = n.CreateActionServer("work", "example/Work", ActionServerCallbacks{})
	assert.Equal(t, ErrCodeInvalidArgument, CodeOf(err))
}

func TestAction_DestroyServerAbortsGoals(t *testing.T) {
	c := newTestContext(t)
	n := newTestNode(t, c, "teardown")

	server, err := n.CreateActionServer("work", "example/Work", ActionServerCallbacks{
		Execute: func(_ context.Context, gh *ServerGoalHandle) (any, error) { return nil, gh.Succeed() },
	})
	require.NoError(t, err)
	client, err := n.CreateActionClient("work", "example/Work")
	require.NoError(t, err)

	f, err := client.SendGoalAsync(1, nil)
	require.NoError(t, err)
	require.NoError(t, runNext(t, server))
	require.NoError(t, runNext(t, client))
	gh := futureResult(t, f).(*ClientGoalHandle)
	sgh, ok := server.Goal(gh.GoalID())
	require.True(t, ok)
	assert.Equal(t, GoalStatusExecuting, sgh.Status())

	require.NoError(t, server.Destroy())
	assert.Equal(t, GoalStatusAborted, sgh.Status())
	assert.False(t, client.ServerIsReady())

	require.NoError(t, client.Destroy())
	_, err = gh.ResultFuture().Result()
	assert.ErrorIs(t, err, ErrFutureCanceled)
}
