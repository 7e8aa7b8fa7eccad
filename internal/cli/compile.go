package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
)

// CompileOptions are the flags of the compile command.
type CompileOptions struct {
	*RootOptions
	Func     string
	Config   string // YAML fusion.Config
	Output   string // canonical JSON destination
	Database string // run log; empty disables recording
}

// FuncResult is the outcome of the pass over one function.
type FuncResult struct {
	Name   string         `json:"name"`
	IR     map[string]any `json:"ir"`
	Report *fusion.Report `json:"report"`
	RunID  string         `json:"run_id,omitempty"`

	fn *ir.Func
}

// CompilationResult is the JSON payload of compile.
type CompilationResult struct {
	Funcs []FuncResult `json:"funcs"`
}

// NewCompileCommand returns the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <programs-dir>",
		Short: "Run the fusion pass over CUE programs",
		Long: `Compile the CUE programs of a directory, cluster their operations into
task nodes and wrap each function body in a schedule.

Text output prints the transformed IR. JSON output carries the canonical
IR tree and the pass report of every function.

Examples:
  dataflow compile ./programs
  dataflow compile ./programs --func net --config fusion.yaml
  dataflow compile ./programs --db ./dataflow.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Func, "func", "", "only transform the named function")
	cmd.Flags().StringVar(&opts.Config, "config", "", "fusion config file (YAML)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write canonical IR to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")

	return cmd
}

func runCompile(opts *CompileOptions, programsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, cfgErr := loadFusionConfig(opts.Config)
	if cfgErr != nil {
		return outputCompileError(formatter, cfgErr)
	}

	loadResult, loadErrors := LoadPrograms(programsDir, LoadModeCollectAll)
	if loadResult == nil {
		return outputCompileError(formatter, asLoadError(loadErrors[0]))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, programsDir)
	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	funcs, err := SelectFunc(loadResult.Funcs, opts.Func)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	// The pass only runs over well-formed input.
	var invalid []error
	for _, fn := range funcs {
		for _, verr := range compiler.Validate(fn) {
			invalid = append(invalid, verr)
		}
	}
	if len(invalid) > 0 {
		return outputCompileErrors(formatter, invalid)
	}

	var st *store.Store
	if opts.Database != "" {
		if st, err = store.Open(opts.Database); err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	c := &compilation{
		cfg:       cfg,
		store:     st,
		logger:    newLogger(opts.RootOptions, formatter.GetErrWriter()),
		formatter: formatter,
	}
	result := &CompilationResult{Funcs: make([]FuncResult, 0, len(funcs))}
	for _, fn := range funcs {
		fr, err := c.transform(context.Background(), fn)
		if err != nil {
			return err
		}
		result.Funcs = append(result.Funcs, fr)
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, &LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// compilation carries what every function of one compile invocation
// shares.
type compilation struct {
	cfg       fusion.Config
	store     *store.Store
	logger    *slog.Logger
	formatter *OutputFormatter
}

// transform runs the pass over fn.
func (c *compilation) transform(ctx context.Context, fn *ir.Func) (FuncResult, error) {
	c.formatter.VerboseLog("Transforming func: %s", fn.Name)

	var firings []fusion.PhaseFiring
	report, err := fusion.Run(ctx, fn,
		fusion.WithConfig(c.cfg),
		fusion.WithLogger(c.logger),
		fusion.WithFiringListener(func(f fusion.PhaseFiring) { firings = append(firings, f) }),
	)
	if err != nil {
		return FuncResult{}, WrapExitError(ExitCommandError, "pass failed on "+fn.Name, err)
	}

	return c.finish(ctx, fn, report, firings)
}

// finish refuses a transformed function that fails verification, then
// records the run when a store is configured.
func (c *compilation) finish(ctx context.Context, fn *ir.Func, report *fusion.Report, firings []fusion.PhaseFiring) (FuncResult, error) {
	if problems := checkPassOutput(fn); len(problems) > 0 {
		errs := make([]error, len(problems))
		for i, p := range problems {
			errs[i] = p
		}
		return FuncResult{}, outputCompileErrors(c.formatter, errs)
	}

	fr := FuncResult{Name: fn.Name, IR: ir.EncodeFunc(fn), Report: report, fn: fn}
	if c.store == nil {
		return fr, nil
	}
	run, err := c.store.RecordRun(ctx, report, firings)
	if err != nil {
		return FuncResult{}, WrapExitError(ExitCommandError, "failed to record run", err)
	}
	fr.RunID = run.ID
	c.formatter.VerboseLog("Recorded run %s (seq %d)", run.ID, run.Seq)
	return fr, nil
}

// outputCompileSuccess outputs the transformed functions.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if len(result.Funcs) == 1 {
			response.RunID = result.Funcs[0].RunID
		}
		return formatter.Respond(response)
	}

	w := formatter.Writer
	for _, fr := range result.Funcs {
		if err := ir.Print(w, fr.fn); err != nil {
			return err
		}

		s := fr.Report.Stats
		status := "converged"
		if !fr.Report.Converged() {
			status = "NOT converged"
		}
		fmt.Fprintf(w, "// %s: %d task(s), %d clustered, %d unclustered, largest %d, %s\n\n",
			fr.Name, s.Tasks, s.Clustered, s.Unclustered, s.LargestTask, status)
	}

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical IR to %s\n", outputFile)
	}

	return nil
}

// outputCompileError reports a failure that stopped compilation before
// any function was loaded.
func outputCompileError(formatter *OutputFormatter, loadErr *LoadError) error {
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	return NewExitError(ExitCommandError, loadErr.Code+": "+loadErr.Message)
}

// outputCompileErrors reports every function that failed to compile or
// validate. Both are command errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failure := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			cliErrors[i].Code, cliErrors[i].Message = parseCompileError(err)
		}
		if err := formatter.Respond(CLIResponse{Status: "error", Error: &cliErrors[0], Data: cliErrors}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprint(w, "✗ Compilation failed\n\n")
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		code, message := parseCompileError(err)
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}
	return failure
}

// parseCompileError returns the error code and message reported for err.
func parseCompileError(err error) (code, message string) {
	var loadErr *LoadError
	var verr compiler.ValidationError
	var compileErr *compiler.CompileError
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Code, loadErr.Message
	case errors.As(err, &verr):
		return verr.Code, verr.Field + ": " + verr.Message
	case errors.As(err, &compileErr):
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the transformed functions to a file in canonical JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	funcs := make([]any, len(result.Funcs))
	for i, fr := range result.Funcs {
		funcs[i] = fr.IR
	}
	data, err := ir.MarshalCanonical(map[string]any{
		"funcs":        funcs,
		"ir_version":   ir.IRVersion,
		"pass_version": ir.PassVersion,
	})
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
