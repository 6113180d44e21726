package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/introspect"
	"github.com/roach88/rclgo/internal/launch"
	"github.com/roach88/rclgo/internal/rcl"
	"github.com/roach88/rclgo/internal/store"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Duration time.Duration
	HTTPAddr string

	// SignalHandlers selects the signals that shut the context down.
	SignalHandlers rcl.SignalHandlerOptions
}

// RunReport is printed when the run command stops.
type RunReport struct {
	Source  string            `json:"source"`
	RunID   string            `json:"run_id"`
	Stats   executor.Stats    `json:"stats"`
	Summary *store.RunSummary `json:"summary,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts, SignalHandlers: rcl.SignalHandlerAll}

	cmd := &cobra.Command{
		Use:   "run <launch.cue> [-- --ros-args ...]",
		Short: "Launch a node graph and spin it",
		Long: `Launch the nodes of a CUE launch description and spin them on the
executor the description selects.

The command stops on SIGINT or SIGTERM, when --duration elapses, or when
the context shuts down. With --db every dispatch is recorded in a SQLite
dispatch log that "rclgo trace" reads back. With --http the graph and
executor introspection endpoints are served while the executor spins.

Arguments after the launch file are parsed as a ROS command line, so
--ros-args sections can remap names for the whole graph.

Example:
  rclgo run ./launch/pipeline.cue
  rclgo run --db ./runs.db --duration 10s ./launch/pipeline.cue
  rclgo run --http :8080 ./launch/pipeline.cue -- --ros-args -r chatter:=talk`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record dispatches to this SQLite database")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 spins until interrupted)")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http", "", "serve introspection endpoints on this address")

	return cmd
}

func runLaunch(opts *RunOptions, path string, rosArgs []string, cmd *cobra.Command) error {
	logger := slog.Default()
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	desc, err := launch.LoadFile(path)
	if err != nil {
		_ = f.Error(ErrCodeLaunch, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load launch description", err)
	}
	logger.Info("launch description loaded", "source", desc.Source, "nodes", len(desc.Nodes))

	rctx := rcl.NewContext()
	if err := rctx.Init(
		rcl.WithArgs(rosArgs),
		rcl.WithLogger(logger),
		rcl.WithSignalHandlers(opts.SignalHandlers),
	); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize context", err)
	}
	defer func() { _ = rctx.TryShutdown() }()

	execOpts := []executor.Option{executor.WithSource(desc.Source)}
	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		execOpts = append(execOpts, executor.WithRecorder(st))
		logger.Info("recording dispatches", "db", opts.Database)
	}

	sys, err := launch.Build(rctx, desc,
		launch.WithLogger(logger),
		launch.WithExecutorOptions(execOpts...),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build launch description", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Spinning %d node(s) from %s. Press Ctrl-C to stop.\n", len(sys.Nodes()), desc.Source)

	spinErr := serve(ctx, opts, sys, logger)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutCancel()
	if err := sys.Close(shutCtx); err != nil {
		logger.Warn("executor shutdown", "error", err)
	}
	if spinErr != nil {
		return WrapExitError(ExitFailure, "executor error", spinErr)
	}

	report := RunReport{
		Source: desc.Source,
		RunID:  sys.Executor.RunID(),
		Stats:  sys.Executor.Stats(),
	}
	if st != nil {
		summary, err := st.Summarize(shutCtx, report.RunID)
		switch {
		case err == nil:
			report.Summary = &summary
		case errors.Is(err, sql.ErrNoRows):
			// Nothing was dispatched, so the run was never recorded.
		default:
			return WrapExitError(ExitCommandError, "failed to summarize run", err)
		}
	}

	return outputRunReport(f, report)
}

// serve spins the executor and, when configured, the introspection server
// until ctx is done, the context shuts down or either of them fails.
func serve(ctx context.Context, opts *RunOptions, sys *launch.System, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The HTTP server stops with the executor.
		defer cancel()
		err := sys.Executor.Spin(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if opts.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           introspect.New(sys.Context, sys.Executor, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("introspection server listening", "addr", opts.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("introspection server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutCancel()
			return srv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

func outputRunReport(f *OutputFormatter, report RunReport) error {
	if f.JSON() {
		return f.Success(report)
	}

	w := f.Writer
	s := report.Stats
	fmt.Fprintf(w, "Run %s (%s, %d worker(s))\n", report.RunID, s.Kind, s.Workers)
	fmt.Fprintf(w, "  Passes:     %d\n", s.Passes)
	fmt.Fprintf(w, "  Dispatched: %d\n", s.Dispatched)
	fmt.Fprintf(w, "  Failed:     %d\n", s.Failed)
	fmt.Fprintf(w, "  Panicked:   %d\n", s.Panicked)
	if report.Summary != nil {
		fmt.Fprintf(w, "  Recorded:   %d (last seq %d)\n", report.Summary.Dispatches, report.Summary.LastSeq)
		fmt.Fprintf(w, "  Overlaps:   %d\n", report.Summary.Overlaps)
		fmt.Fprintf(w, "  Trace hash: %s\n", report.Summary.TraceHash)
	}
	return nil
}
