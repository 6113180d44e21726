package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/rclgo/internal/ir"
)

const dispatchColumns = `id, run_id, executor_id, node, entity_id, entity_name, entity_kind,
	group_id, group_kind, seq, end_seq, outcome, error, started_at_ns, finished_at_ns`

const runColumns = `id, executor_id, executor_kind, workers, source, started_at_ns, engine_version, ir_version`

// DispatchFilter narrows ListDispatches. Zero fields match everything.
type DispatchFilter struct {
	RunID      string
	Node       string
	EntityName string
	GroupID    string
	GroupKind  string
	Outcome    ir.Outcome
	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

func (f DispatchFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val != "" {
			conds = append(conds, col+" = ?")
			args = append(args, val)
		}
	}
	add("run_id", f.RunID)
	add("node", f.Node)
	add("entity_name", f.EntityName)
	add("group_id", f.GroupID)
	add("group_kind", f.GroupKind)
	add("outcome", string(f.Outcome))
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListDispatches returns dispatches matching filter.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListDispatches(ctx context.Context, filter DispatchFilter) ([]ir.Dispatch, error) {
	where, args := filter.where()
	query := `SELECT ` + dispatchColumns + ` FROM dispatches ` + where +
		` ORDER BY seq ASC, id COLLATE BINARY ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []ir.Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}

// ReadDispatch retrieves a single dispatch by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadDispatch(ctx context.Context, id string) (ir.Dispatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	return scanDispatch(row)
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns every run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at_ns ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
// Returns sql.ErrNoRows if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at_ns DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	return scanRun(row)
}

// Overlap is a pair of dispatches of the same group whose [seq, end_seq)
// intervals intersect. First started before Second.
type Overlap struct {
	GroupID string
	First   ir.Dispatch
	Second  ir.Dispatch
}

// GroupOverlaps finds dispatches in MutuallyExclusive groups of runID that
// ran at the same time. A correct executor never produces any.
func (s *Store) GroupOverlaps(ctx context.Context, runID string) ([]Overlap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prefixed("a")+`, `+prefixed("b")+`
		FROM dispatches a
		JOIN dispatches b
		  ON a.run_id = b.run_id
		 AND a.group_id = b.group_id
		 AND a.id <> b.id
		 AND (a.seq < b.seq OR (a.seq = b.seq AND a.id < b.id))
		 AND b.seq < a.end_seq
		WHERE a.run_id = ?
		  AND a.group_kind = 'mutually_exclusive'
		ORDER BY a.seq ASC, b.seq ASC, a.id COLLATE BINARY ASC, b.id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query group overlaps: %w", err)
	}
	defer rows.Close()

	overlaps := []Overlap{}
	for rows.Next() {
		var a, b dispatchRow
		dest := append(a.dest(), b.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan overlap: %w", err)
		}
		first, second := a.dispatch(), b.dispatch()
		overlaps = append(overlaps, Overlap{GroupID: first.GroupID, First: first, Second: second})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overlaps: %w", err)
	}
	return overlaps, nil
}

// prefixed qualifies dispatchColumns with a table alias.
func prefixed(alias string) string {
	cols := strings.Split(dispatchColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// dispatchRow holds the scan targets of one dispatch row.
type dispatchRow struct {
	d       ir.Dispatch
	outcome string
	errText sql.NullString
}

func (r *dispatchRow) dest() []any {
	return []any{
		&r.d.ID,
		&r.d.RunID,
		&r.d.ExecutorID,
		&r.d.Node,
		&r.d.EntityID,
		&r.d.EntityName,
		&r.d.EntityKind,
		&r.d.GroupID,
		&r.d.GroupKind,
		&r.d.Seq,
		&r.d.EndSeq,
		&r.outcome,
		&r.errText,
		&r.d.StartedAt,
		&r.d.FinishedAt,
	}
}

func (r *dispatchRow) dispatch() ir.Dispatch {
	d := r.d
	d.Outcome = ir.Outcome(r.outcome)
	d.Error = r.errText.String
	return d
}

func scanDispatch(row scanner) (ir.Dispatch, error) {
	var r dispatchRow
	if err := row.Scan(r.dest()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Dispatch{}, err
		}
		return ir.Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}
	return r.dispatch(), nil
}

func scanRun(row scanner) (ir.Run, error) {
	var r ir.Run
	err := row.Scan(
		&r.ID,
		&r.ExecutorID,
		&r.ExecutorKind,
		&r.Workers,
		&r.Source,
		&r.StartedAt,
		&r.EngineVersion,
		&r.IRVersion,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}
