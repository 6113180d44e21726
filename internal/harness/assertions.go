package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []ir.Dispatch // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, d := range e.Trace {
			fmt.Fprintf(&buf, "  [%d-%d] %s %s", d.Seq, d.EndSeq, traceLabel(d), d.Outcome)
			if d.Error != "" {
				fmt.Fprintf(&buf, " (%s)", d.Error)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// describeFilter renders the node, entity and outcome filters of a.
func describeFilter(a Assertion) string {
	var parts []string
	if a.Node != "" {
		parts = append(parts, "node="+a.Node)
	}
	if a.Entity != "" {
		parts = append(parts, "entity="+a.Entity)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if len(parts) == 0 {
		return "any dispatch"
	}
	return strings.Join(parts, " ")
}

// assertDispatchCount checks the number of recorded dispatches matching the
// assertion's filters.
func assertDispatchCount(ctx context.Context, st *store.Store, runID string, trace []ir.Dispatch, a Assertion) error {
	got, err := st.ListDispatches(ctx, store.DispatchFilter{
		RunID:      runID,
		Node:       a.Node,
		EntityName: a.Entity,
		Outcome:    ir.Outcome(a.Outcome),
	})
	if err != nil {
		return fmt.Errorf("dispatch_count: %w", err)
	}
	if len(got) != a.Count {
		return &AssertionError{
			Type:     AssertDispatchCount,
			Expected: fmt.Sprintf("%d dispatches of %s", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d dispatches", len(got)),
			Trace:    trace,
		}
	}
	return nil
}

// assertDispatchOrder checks that the listed entities were first dispatched
// in the given order. Other dispatches may come in between.
func assertDispatchOrder(trace []ir.Dispatch, a Assertion) error {
	// 1-indexed so that zero means absent.
	positions := make(map[string]int)
	for i, d := range trace {
		label := traceLabel(d)
		if positions[label] == 0 {
			positions[label] = i + 1
		}
	}

	for _, label := range a.Entities {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertDispatchOrder,
				Expected: fmt.Sprintf("all entities dispatched: %v", a.Entities),
				Actual:   fmt.Sprintf("never dispatched: %s", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Entities); i++ {
		prev, curr := a.Entities[i-1], a.Entities[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDispatchOrder,
				Expected: fmt.Sprintf("entities in order: %v", a.Entities),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertNoOverlap checks that no two dispatches of a MutuallyExclusive
// group ran at the same time.
func assertNoOverlap(ctx context.Context, st *store.Store, runID string, trace []ir.Dispatch) error {
	overlaps, err := st.GroupOverlaps(ctx, runID)
	if err != nil {
		return fmt.Errorf("no_overlap: %w", err)
	}
	if len(overlaps) == 0 {
		return nil
	}
	o := overlaps[0]
	return &AssertionError{
		Type:     AssertNoOverlap,
		Expected: "no overlapping dispatches in mutually exclusive groups",
		Actual: fmt.Sprintf("%d overlaps, first: %s [%d-%d] and %s [%d-%d] in group %s",
			len(overlaps),
			traceLabel(o.First), o.First.Seq, o.First.EndSeq,
			traceLabel(o.Second), o.Second.Seq, o.Second.EndSeq,
			o.GroupID),
		Trace: trace,
	}
}

// assertErrorCount checks the number of dispatches that failed or panicked.
func assertErrorCount(trace []ir.Dispatch, a Assertion) error {
	count := 0
	for _, d := range trace {
		if d.Outcome == ir.OutcomeOK {
			continue
		}
		if a.Node != "" && d.Node != a.Node {
			continue
		}
		if a.Entity != "" && d.EntityName != a.Entity {
			continue
		}
		count++
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d failed dispatches of %s", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d failed dispatches", count),
			Trace:    trace,
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for dispatch_count and
// no_overlap assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDispatchOrder:
			err = assertDispatchOrder(result.Trace, assertion)
		case AssertErrorCount:
			err = assertErrorCount(result.Trace, assertion)
		case AssertDispatchCount, AssertNoOverlap:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			ctx := actx.Ctx
			if ctx == nil {
				ctx = context.Background()
			}
			runID := actx.RunID
			if runID == "" {
				runID = result.RunID
			}
			if assertion.Type == AssertDispatchCount {
				err = assertDispatchCount(ctx, actx.Store, runID, result.Trace, assertion)
			} else {
				err = assertNoOverlap(ctx, actx.Store, runID, result.Trace)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
