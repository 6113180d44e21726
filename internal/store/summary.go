package store

import (
	"context"
	"fmt"

	"github.com/roach88/rclgo/internal/ir"
)

// RunSummary aggregates the dispatch log of one run.
type RunSummary struct {
	Run        ir.Run `json:"run"`
	Dispatches int    `json:"dispatches"`
	Failed     int    `json:"failed"`
	Panicked   int    `json:"panicked"`
	LastSeq    int64  `json:"last_seq"`
	Overlaps   int    `json:"overlaps"`
	TraceHash  string `json:"trace_hash"`
}

// Summarize reads back a run and computes its summary.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{Run: run}

	dispatches, err := s.ListDispatches(ctx, DispatchFilter{RunID: runID})
	if err != nil {
		return summary, fmt.Errorf("summarize: %w", err)
	}
	summary.Dispatches = len(dispatches)
	for _, d := range dispatches {
		switch d.Outcome {
		case ir.OutcomeError:
			summary.Failed++
		case ir.OutcomePanic:
			summary.Failed++
			summary.Panicked++
		}
		if d.EndSeq > summary.LastSeq {
			summary.LastSeq = d.EndSeq
		}
	}

	overlaps, err := s.GroupOverlaps(ctx, runID)
	if err != nil {
		return summary, fmt.Errorf("summarize: %w", err)
	}
	summary.Overlaps = len(overlaps)

	summary.TraceHash, err = ir.TraceHash(dispatches)
	if err != nil {
		return summary, fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

// LastSeq returns the highest end_seq recorded for runID, or 0 if the run
// has no dispatches.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(end_seq), 0) FROM dispatches WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
