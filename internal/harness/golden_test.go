package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rclgo/internal/ir"
)

// First run with -update to create golden files:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_RelayChain(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "relay_chain"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_FaultInjection(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "fault_injection"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_ServiceRoundtrip(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "service_roundtrip"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestGoldenTrace_Format(t *testing.T) {
	d := ir.Dispatch{
		ID:         "ignored",
		EntityID:   "ignored",
		Node:       "/n",
		EntityName: "t",
		EntityKind: "timer",
		GroupKind:  "reentrant",
		Seq:        1,
		EndSeq:     2,
		Outcome:    ir.OutcomeError,
		Error:      "boom",
	}

	got, err := GoldenTrace("fmt", []ir.Dispatch{d})
	require.NoError(t, err)
	want := `{"dispatches":1,"scenario":"fmt"}` + "\n" +
		`{"end_seq":2,"entity":"t","entity_kind":"timer","error":"boom","group_kind":"reentrant","node":"/n","outcome":"error","seq":1}` + "\n"
	assert.Equal(t, want, string(got))
}

func TestGoldenTrace_Empty(t *testing.T) {
	got, err := GoldenTrace("empty", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"dispatches":0,"scenario":"empty"}`+"\n", string(got))
}
