package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rclgo/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, executor_id, executor_kind, workers, source, started_at_ns, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.ExecutorID,
		run.ExecutorKind,
		run.Workers,
		run.Source,
		run.StartedAt,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteDispatch inserts a dispatch record.
//
// The ID is computed with ir.DispatchID when empty. A dispatch whose ID
// already exists is silently ignored, so re-recording the same logical
// dispatch is safe.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteDispatch(ctx context.Context, d ir.Dispatch) error {
	if err := insertDispatch(ctx, s.db, d); err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	return nil
}

// WriteDispatches inserts dispatches in one transaction. Either all new
// records are written or none are.
func (s *Store) WriteDispatches(ctx context.Context, ds []ir.Dispatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write dispatches: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, d := range ds {
		if err := insertDispatch(ctx, tx, d); err != nil {
			return fmt.Errorf("write dispatches: seq %d: %w", d.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write dispatches: commit: %w", err)
	}
	return nil
}

func insertDispatch(ctx context.Context, ex execer, d ir.Dispatch) error {
	if d.ID == "" {
		id, err := ir.DispatchID(d.RunID, d.EntityID, d.Seq)
		if err != nil {
			return err
		}
		d.ID = id
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, run_id, executor_id, node, entity_id, entity_name, entity_kind, group_id, group_kind,
		 seq, end_seq, outcome, error, started_at_ns, finished_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		d.ID,
		d.RunID,
		d.ExecutorID,
		d.Node,
		d.EntityID,
		d.EntityName,
		d.EntityKind,
		d.GroupID,
		d.GroupKind,
		d.Seq,
		d.EndSeq,
		string(d.Outcome),
		nullString(d.Error),
		d.StartedAt,
		d.FinishedAt,
	)
	return err
}

// RecordRun implements executor.Recorder.
func (s *Store) RecordRun(ctx context.Context, run ir.Run) error {
	return s.WriteRun(ctx, run)
}

// RecordDispatch implements executor.Recorder.
func (s *Store) RecordDispatch(ctx context.Context, d ir.Dispatch) error {
	return s.WriteDispatch(ctx, d)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
