package ir

// Outcome is the result of one callback invocation.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
	OutcomePanic Outcome = "panic"
)

// Dispatch records a single callback invocation.
//
// Seq is taken from the executor clock when the entity is selected and EndSeq
// when the callback returns. Wall-clock fields are informational only and are
// never part of identity or golden output.
type Dispatch struct {
	ID         string  `json:"id"`
	RunID      string  `json:"run_id"`
	ExecutorID string  `json:"executor_id"`
	Node       string  `json:"node"`
	EntityID   string  `json:"entity_id"`
	EntityName string  `json:"entity_name"`
	EntityKind string  `json:"entity_kind"`
	GroupID    string  `json:"group_id"`
	GroupKind  string  `json:"group_kind"`
	Seq        int64   `json:"seq"`
	EndSeq     int64   `json:"end_seq"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
	StartedAt  int64   `json:"started_at_ns"`
	FinishedAt int64   `json:"finished_at_ns"`
}

// Overlaps reports whether d and other were running at the same time.
func (d Dispatch) Overlaps(other Dispatch) bool {
	return d.Seq < other.EndSeq && other.Seq < d.EndSeq
}

// TraceMap is the deterministic subset of a dispatch used for golden traces
// and trace hashes. Entity and group IDs are left out because they are random
// per process; names identify the entity instead.
func (d Dispatch) TraceMap() map[string]any {
	m := map[string]any{
		"node":        d.Node,
		"entity":      d.EntityName,
		"entity_kind": d.EntityKind,
		"group_kind":  d.GroupKind,
		"seq":         d.Seq,
		"end_seq":     d.EndSeq,
		"outcome":     string(d.Outcome),
	}
	if d.Error != "" {
		m["error"] = d.Error
	}
	return m
}

// CanonicalMap implements Canonicalizer.
func (d Dispatch) CanonicalMap() map[string]any {
	m := d.TraceMap()
	m["id"] = d.ID
	m["run_id"] = d.RunID
	m["executor_id"] = d.ExecutorID
	m["entity_id"] = d.EntityID
	m["group_id"] = d.GroupID
	return m
}

// Run describes one executor session recorded in the dispatch log.
type Run struct {
	ID            string `json:"id"`
	ExecutorID    string `json:"executor_id"`
	ExecutorKind  string `json:"executor_kind"` // "single_threaded" or "multi_threaded"
	Workers       int    `json:"workers"`
	Source        string `json:"source,omitempty"` // launch file or scenario path
	StartedAt     int64  `json:"started_at_ns"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}
