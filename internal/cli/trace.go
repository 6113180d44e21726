package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // defaults to the latest run
	Group    string
	Node     string
	Outcome  string
	Limit    int
}

// OverlapInfo is a pair of dispatches of one mutually exclusive group that
// ran at the same time.
type OverlapInfo struct {
	GroupID string      `json:"group_id"`
	First   ir.Dispatch `json:"first"`
	Second  ir.Dispatch `json:"second"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run        ir.Run           `json:"run"`
	Summary    store.RunSummary `json:"summary"`
	Dispatches []ir.Dispatch    `json:"dispatches"`
	Overlaps   []OverlapInfo    `json:"overlaps"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded dispatches of a run",
		Long: `Read a run back from a dispatch log written by "rclgo run --db".

The output includes:
- Run: executor kind, worker count and launch source
- Timeline: every dispatch in seq order with its [seq, end_seq) interval
- Overlaps: dispatches of a mutually exclusive group that ran concurrently
- Summary: dispatch counts and the trace hash

A run with overlaps exits with status 1.

Examples:
  rclgo trace --db ./runs.db
  rclgo trace --db ./runs.db --run 01930f4e-... --group 01930f4e-...
  rclgo trace --db ./runs.db --node /pipeline/filter --outcome error --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show (default: latest run)")
	cmd.Flags().StringVar(&opts.Group, "group", "", "only dispatches of this callback group id")
	cmd.Flags().StringVar(&opts.Node, "node", "", "only dispatches of this fully qualified node name")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only dispatches with this outcome (ok|error|panic)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many dispatches")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	switch ir.Outcome(opts.Outcome) {
	case "", ir.OutcomeOK, ir.OutcomeError, ir.OutcomePanic:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid outcome %q: must be ok, error or panic", opts.Outcome))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = f.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := loadRun(ctx, st, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		msg := "no runs recorded"
		if opts.RunID != "" {
			msg = "run not found: " + opts.RunID
		}
		_ = f.Error(ErrCodeNoRuns, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	f.VerboseLog("Reading run %s from %s", run.ID, opts.Database)

	dispatches, err := st.ListDispatches(ctx, store.DispatchFilter{
		RunID:   run.ID,
		Node:    opts.Node,
		GroupID: opts.Group,
		Outcome: ir.Outcome(opts.Outcome),
		Limit:   opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list dispatches", err)
	}

	summary, err := st.Summarize(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize run", err)
	}

	overlaps, err := st.GroupOverlaps(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check group overlaps", err)
	}

	result := TraceResult{
		Run:        run,
		Summary:    summary,
		Dispatches: dispatches,
		Overlaps:   make([]OverlapInfo, 0, len(overlaps)),
	}
	for _, o := range overlaps {
		if opts.Group != "" && o.GroupID != opts.Group {
			continue
		}
		result.Overlaps = append(result.Overlaps, OverlapInfo{GroupID: o.GroupID, First: o.First, Second: o.Second})
	}

	if f.JSON() {
		if err := outputTraceJSON(f, result); err != nil {
			return err
		}
	} else {
		outputTraceText(f, result)
	}

	if len(result.Overlaps) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mutually exclusive group overlap(s)", len(result.Overlaps)))
	}
	return nil
}

func loadRun(ctx context.Context, st *store.Store, id string) (ir.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}
	return st.ReadRun(ctx, id)
}

func outputTraceJSON(f *OutputFormatter, result TraceResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if len(result.Overlaps) > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    ErrCodeOverlap,
			Message: fmt.Sprintf("%d mutually exclusive group overlap(s)", len(result.Overlaps)),
		}
	}
	return f.Response(resp)
}

func outputTraceText(f *OutputFormatter, result TraceResult) {
	w := f.Writer
	run := result.Run

	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "  Executor: %s (%s, %d worker(s))\n", truncateID(run.ExecutorID), run.ExecutorKind, run.Workers)
	if run.Source != "" {
		fmt.Fprintf(w, "  Source:   %s\n", run.Source)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Dispatches) == 0 {
		fmt.Fprintln(w, "  (no dispatches)")
	}
	for _, d := range result.Dispatches {
		fmt.Fprintf(w, "  [%d-%d] %s/%s %s %s", d.Seq, d.EndSeq, d.Node, d.EntityName, d.EntityKind, d.Outcome)
		if d.Error != "" {
			fmt.Fprintf(w, " (%s)", d.Error)
		}
		fmt.Fprintln(w)
		if f.Verbose {
			fmt.Fprintf(w, "       group: %s (%s)\n", truncateID(d.GroupID), d.GroupKind)
		}
	}
	fmt.Fprintln(w)

	if len(result.Overlaps) > 0 {
		fmt.Fprintln(w, "=== Overlaps ===")
		for _, o := range result.Overlaps {
			fmt.Fprintf(w, "  %s: %s/%s [%d-%d] and %s/%s [%d-%d]\n",
				truncateID(o.GroupID),
				o.First.Node, o.First.EntityName, o.First.Seq, o.First.EndSeq,
				o.Second.Node, o.Second.EntityName, o.Second.Seq, o.Second.EndSeq)
		}
		fmt.Fprintln(w)
	}

	s := result.Summary
	fmt.Fprintln(w, "=== Summary ===")
	fmt.Fprintf(w, "  Dispatches: %d\n", s.Dispatches)
	fmt.Fprintf(w, "  Failed:     %d\n", s.Failed)
	fmt.Fprintf(w, "  Panicked:   %d\n", s.Panicked)
	fmt.Fprintf(w, "  Last seq:   %d\n", s.LastSeq)
	fmt.Fprintf(w, "  Overlaps:   %d\n", s.Overlaps)
	fmt.Fprintf(w, "  Trace hash: %s\n", s.TraceHash)
}

// truncateID shortens an identifier for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:16] + "..."
}
