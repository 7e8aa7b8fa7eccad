package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string // glob over scenario file names, extension stripped
	Golden string
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult tallies a scenario directory.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(s ScenarioResult) {
	r.Scenarios = append(r.Scenarios, s)
	r.Total++
	if s.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run the YAML scenarios of a directory through the fusion pass.

Each scenario names a CUE program and lists assertions on the resulting
tasks and firing trace. When {name}.golden and {name}.trace.golden exist
in the golden directory, the printed IR and the trace must match them.
The golden directory defaults to "golden" next to the scenarios dir.

Exit codes:
  0 - every scenario passed
  1 - a scenario failed
  2 - missing directory or bad filter

Examples:
  dataflow test ./testdata/scenarios
  dataflow test ./testdata/scenarios --filter "conv*"
  dataflow test ./testdata/scenarios --update
  dataflow test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current output")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <scenarios-dir>/../golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+scenariosDir)
	}
	if _, err := filepath.Match(opts.Filter, ""); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	golden := goldenDir(opts.Golden)
	if golden == "" {
		golden = goldenDir(filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden"))
	}

	files, err := harness.FindScenarios(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	files = filterScenarioFiles(files, opts.Filter)

	jsonOut := opts.Format == "json"
	if len(files) == 0 && !jsonOut {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: []ScenarioResult{}}
	for _, file := range files {
		r := runScenario(file, golden, opts.Update)
		result.add(r)
		if !jsonOut {
			printScenarioResult(cmd, r)
		}
	}

	if jsonOut {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// filterScenarioFiles keeps files whose base name, without extension,
// matches filter. The pattern was checked by the caller.
func filterScenarioFiles(files []string, filter string) []string {
	if filter == "" {
		return files
	}
	var out []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if ok, _ := filepath.Match(filter, name); ok {
			out = append(out, f)
		}
	}
	return out
}

func failedScenario(name, format string, args ...any) ScenarioResult {
	return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
}

// runScenario loads and runs one scenario file, then either rewrites its
// golden files or checks the result against them.
func runScenario(file string, golden goldenDir, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return failedScenario(filepath.Base(file), "failed to load scenario: %v", err)
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return failedScenario(scenario.Name, "execution failed: %v", err)
	}

	trace, err := harness.TraceJSON(scenario.Name, result.Trace)
	if err != nil {
		return failedScenario(scenario.Name, "failed to render golden output: %v", err)
	}
	files := golden.files(scenario.Name, []byte(result.Printed), trace)

	if update {
		if err := golden.write(files); err != nil {
			return failedScenario(scenario.Name, "failed to update golden files: %v", err)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	errs := result.Errors
	mismatches, err := golden.compare(files)
	if err != nil {
		errs = append(errs, fmt.Sprintf("golden comparison failed: %v", err))
	}
	errs = append(errs, mismatches...)

	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass && len(errs) == 0,
		Errors: errs,
	}
}

// goldenDir holds {name}.golden, the printed IR, and {name}.trace.golden,
// the canonical JSON firing trace.
type goldenDir string

type goldenFile struct {
	path string
	what string
	got  []byte
}

func (d goldenDir) files(name string, printed, trace []byte) []goldenFile {
	return []goldenFile{
		{filepath.Join(string(d), name+".golden"), "printed IR", printed},
		{filepath.Join(string(d), name+".trace.golden"), "trace", trace},
	}
}

func (d goldenDir) write(files []goldenFile) error {
	if err := os.MkdirAll(string(d), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.got, 0644); err != nil {
			return err
		}
	}
	return nil
}

// compare checks the golden files that exist. A scenario without golden
// files relies on its assertions alone.
func (d goldenDir) compare(files []goldenFile) ([]string, error) {
	var mismatches []string
	for _, f := range files {
		want, err := os.ReadFile(f.path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return mismatches, fmt.Errorf("failed to read golden file: %w", err)
		}
		if !bytes.Equal(want, f.got) {
			mismatches = append(mismatches,
				fmt.Sprintf("%s does not match %s (run with --update to regenerate)", f.what, filepath.Base(f.path)))
		}
	}
	return mismatches, nil
}

func printScenarioResult(cmd *cobra.Command, r ScenarioResult) {
	w := cmd.OutOrStdout()
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s\n", mark, r.Name)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func testFailure(result TestResult) error {
	if result.Failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
}

func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	failure := testFailure(result)
	if failure != nil {
		response.Status = "error"
		response.Error = &CLIError{Code: "E_TEST_FAILED", Message: failure.Error()}
	}

	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if err := formatter.Respond(response); err != nil {
		return err
	}
	return failure
}

func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if err := testFailure(result); err != nil {
		return err
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
