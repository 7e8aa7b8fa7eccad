package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - show one run's firings
	Func     string // optional - filter runs by function
}

// RunTrace is the firing timeline of one run.
type RunTrace struct {
	Run      store.Run            `json:"run"`
	Firings  []store.Firing       `json:"firings"`
	Patterns []store.PatternCount `json:"patterns"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded pass runs",
		Long: `List the pass runs recorded by "compile --db", or show the firing
timeline of one run.

The timeline lists every pattern application in order with the phase
it ran in and the number of task nodes right after it, followed by a
per-phase count of firings by pattern.

Examples:
  dataflow trace --db ./dataflow.db
  dataflow trace --db ./dataflow.db --func net
  dataflow trace --db ./dataflow.db --run 0190f0b2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show")
	cmd.Flags().StringVar(&opts.Func, "func", "", "only list runs of this function")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx, opts.Func)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return outputTraceJSON(cmd, runs)
		}
		outputRunsText(cmd.OutOrStdout(), runs)
		return nil
	}

	trace, err := loadRunTrace(ctx, st, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, "unknown run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, trace)
	}
	outputRunTraceText(cmd.OutOrStdout(), trace, opts.Verbose)
	return nil
}

func loadRunTrace(ctx context.Context, st *store.Store, runID string) (RunTrace, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}
	firings, err := st.ReadFirings(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}
	patterns, err := st.PatternCounts(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}
	return RunTrace{Run: run, Firings: firings, Patterns: patterns}, nil
}

// outputTraceJSON outputs data as a JSON response.
func outputTraceJSON(cmd *cobra.Command, data any) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return formatter.Respond(CLIResponse{Status: "ok", Data: data})
}

func outputRunsText(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "  [%d] %s %s: %d task(s), %d node(s), %s\n",
			run.Seq, truncateID(run.ID), run.Func, run.Stats.Tasks, run.Nodes, convergedStatus(run.Converged))
	}
}

func outputRunTraceText(w io.Writer, trace RunTrace, verbose bool) {
	run := trace.Run

	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Func: %s\n", run.Func)
	fmt.Fprintf(w, "Status: %s\n", convergedStatus(run.Converged))
	if verbose {
		fmt.Fprintf(w, "Before: %s\n", run.FingerprintBefore)
		fmt.Fprintf(w, "After:  %s\n", run.FingerprintAfter)
		fmt.Fprintf(w, "Pass: %s (IR %s)\n", run.PassVersion, run.IRVersion)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Firings ===")
	if len(trace.Firings) == 0 {
		fmt.Fprintln(w, "  (no firings)")
	}
	for _, f := range trace.Firings {
		fmt.Fprintf(w, "  [%d] phase %d %s on %s -> %d task(s)\n", f.Seq, f.Phase, f.Pattern, f.RootKind, f.Tasks)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Patterns ===")
	if len(trace.Patterns) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range trace.Patterns {
		fmt.Fprintf(w, "  phase %d %s: %d\n", p.Phase, p.Pattern, p.Count)
	}
	fmt.Fprintln(w)

	s := run.Stats
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Tasks:        %d\n", s.Tasks)
	fmt.Fprintf(w, "  Clustered:    %d\n", s.Clustered)
	fmt.Fprintf(w, "  Unclustered:  %d\n", s.Unclustered)
	fmt.Fprintf(w, "  Largest task: %d\n", s.LargestTask)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

func convergedStatus(converged bool) string {
	if converged {
		return "converged"
	}
	return "not converged"
}
