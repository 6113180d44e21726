package harness

import (
	"github.com/roach88/rclgo/internal/ir"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion and call expectation held.
	Pass bool `json:"pass"`

	// RunID identifies the run in the dispatch log.
	RunID string `json:"run_id"`

	// Trace holds every recorded dispatch in seq order.
	Trace []ir.Dispatch `json:"trace"`

	// TraceHash is ir.TraceHash of Trace.
	TraceHash string `json:"trace_hash"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Trace:  []ir.Dispatch{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceLabel names a dispatch the way dispatch_order assertions do:
// the node's fully qualified name, a slash and the entity name.
func traceLabel(d ir.Dispatch) string {
	return d.Node + "/" + d.EntityName
}
