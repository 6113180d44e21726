package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rclgo/internal/ir"
)

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := testRun("run-1", 100)
	run.Source = "launch/demo.cue"
	require.NoError(t, s.WriteRun(ctx, run))

	changed := run
	changed.Workers = 8
	require.NoError(t, s.WriteRun(ctx, changed))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got, "first write wins")

	assert.Error(t, s.WriteRun(ctx, ir.Run{}))
}

func TestWriteDispatch_ComputesID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("run-1", 1)))

	d := testDispatch("run-1", "t1", "g1", 1, 2)
	d.StartedAt, d.FinishedAt = 10, 20
	require.NoError(t, s.WriteDispatch(ctx, d))

	id := ir.MustDispatchID("run-1", "gid-t1", 1)
	got, err := s.ReadDispatch(ctx, id)
	require.NoError(t, err)
	d.ID = id
	assert.Equal(t, d, got)
}

func TestWriteDispatch_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("run-1", 1)))

	d := testDispatch("run-1", "t1", "g1", 1, 2)
	require.NoError(t, s.WriteDispatch(ctx, d))

	retry := d
	retry.Outcome = ir.OutcomeError
	retry.Error = "boom"
	require.NoError(t, s.RecordDispatch(ctx, retry))

	all, err := s.ListDispatches(ctx, DispatchFilter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ir.OutcomeOK, all[0].Outcome)
	assert.Empty(t, all[0].Error)
}

func TestWriteDispatch_Constraints(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WriteDispatch(ctx, testDispatch("no-such-run", "t1", "g1", 1, 2))
	assert.Error(t, err, "foreign key on run_id")

	require.NoError(t, s.WriteRun(ctx, testRun("run-1", 1)))

	bad := testDispatch("run-1", "t1", "g1", 1, 2)
	bad.Outcome = "maybe"
	assert.Error(t, s.WriteDispatch(ctx, bad), "outcome check")

	backwards := testDispatch("run-1", "t2", "g1", 5, 5)
	assert.Error(t, s.WriteDispatch(ctx, backwards), "end_seq must follow seq")
}

func TestWriteDispatches_Atomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, testRun("run-1", 1)))

	bad := testDispatch("run-1", "t3", "g1", 5, 6)
	bad.Outcome = "maybe"
	err := s.WriteDispatches(ctx, []ir.Dispatch{
		testDispatch("run-1", "t1", "g1", 1, 2),
		testDispatch("run-1", "t2", "g1", 3, 4),
		bad,
	})
	require.Error(t, err)

	all, err := s.ListDispatches(ctx, DispatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.WriteDispatches(ctx, []ir.Dispatch{
		testDispatch("run-1", "t1", "g1", 1, 2),
		testDispatch("run-1", "t2", "g1", 3, 4),
	}))
	all, err = s.ListDispatches(ctx, DispatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
