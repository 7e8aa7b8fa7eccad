package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Funcs  int                        `json:"funcs"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <programs-dir>",
		Short: "Check programs and the pass output",
		Long: `Compile the CUE programs of a directory and check them.

Every input function must be structurally valid. The pass then runs over
each function and its output must be valid too: every compute operation
sits in a task, every task is closed over its inputs and no two tasks
capture each other's results.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "fusion config file (YAML)")

	return cmd
}

func runValidate(opts *ValidateOptions, programsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, cfgErr := loadFusionConfig(opts.Config)
	if cfgErr != nil {
		return outputValidateError(formatter, cfgErr)
	}

	loadResult, loadErrors := LoadPrograms(programsDir, LoadModeCollectAll)
	if loadResult == nil {
		return outputValidateError(formatter, asLoadError(loadErrors[0]))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, programsDir)

	// Functions that failed to compile are reported next to the ones
	// that compiled but are invalid.
	var problems []compiler.ValidationError
	for _, err := range loadErrors {
		loadErr := asLoadError(err)
		problems = append(problems, compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    cueLine(loadErr.Pos),
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = newLogger(opts.RootOptions, formatter.GetErrWriter())
	}
	for _, fn := range loadResult.Funcs {
		formatter.VerboseLog("Validating func: %s", fn.Name)
		errs, err := validateFunc(context.Background(), fn, cfg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "pass failed on "+fn.Name, err)
		}
		problems = append(problems, errs...)
	}

	if len(problems) > 0 {
		return outputValidationErrors(formatter, problems)
	}
	return outputValidateSuccess(formatter, len(loadResult.Funcs))
}

// validateFunc checks fn, runs the pass over it and checks the result.
// The pass only runs over valid input.
func validateFunc(ctx context.Context, fn *ir.Func, cfg fusion.Config, logger *slog.Logger) ([]compiler.ValidationError, error) {
	if errs := compiler.Validate(fn); len(errs) > 0 {
		return withFieldPrefix(errs, "func."+fn.Name), nil
	}

	if _, err := fusion.Run(ctx, fn, fusion.WithConfig(cfg), fusion.WithLogger(logger)); err != nil {
		return nil, err
	}
	return checkPassOutput(fn), nil
}

// checkPassOutput verifies a transformed function: structural validity
// plus the absence of cyclic captures (E301).
func checkPassOutput(fn *ir.Func) []compiler.ValidationError {
	prefix := "func." + fn.Name + " (after pass)"
	errs := withFieldPrefix(compiler.Validate(fn), prefix)
	for _, w := range compiler.AnalyzeCaptures(fn) {
		errs = append(errs, compiler.ValidationError{
			Field:   prefix,
			Message: w.Message,
			Code:    ErrCodeCyclicCapture,
		})
	}
	return errs
}

func withFieldPrefix(errs []compiler.ValidationError, prefix string) []compiler.ValidationError {
	for i := range errs {
		errs[i].Field = prefix + "." + errs[i].Field
	}
	return errs
}

// cueLine is the line of pos, or 0 when pos is unknown.
func cueLine(pos token.Pos) int {
	if !pos.IsValid() {
		return 0
	}
	return pos.Line()
}

func outputValidateSuccess(formatter *OutputFormatter, funcs int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Funcs: funcs})
	}
	fmt.Fprintf(formatter.Writer, "✓ All %d function(s) valid\n", funcs)
	return nil
}

// outputValidateError reports a failure to load the programs at all,
// which is a command error rather than a validation failure.
func outputValidateError(formatter *OutputFormatter, loadErr *LoadError) error {
	_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
	return NewExitError(ExitCommandError, loadErr.Code+": "+loadErr.Message)
}

func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprint(w, "✗ Validation failed\n\n")
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(w, "line %d\n", e.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return failure
}
