package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
	"github.com/roach88/dataflow/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and a private store.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load and compile the program, and validate the input function
// 3. Run the pass, recording the run and its firings
// 4. Read the trace back from the store
// 5. Validate the output and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()

	fn, err := loadProgram(scenario.Program, scenario.Func)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(fn); len(errs) > 0 {
		return nil, fmt.Errorf("invalid input program: %w", errs[0])
	}

	report, firings, err := h.transform(ctx, fn, scenario.config())
	if err != nil {
		return nil, err
	}

	run, err := h.store.RecordRun(ctx, report, firings)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	result := NewResult()
	result.Report = report
	result.Printed = ir.FuncString(fn)

	stored, err := h.store.ReadFirings(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read firings: %w", err)
	}
	for _, f := range stored {
		result.AddFiringTrace(f.Seq, f.Phase, f.Pattern, f.RootKind, f.Tasks)
	}

	for _, verr := range compiler.Validate(fn) {
		result.AddError(verr.Error())
	}
	for _, w := range compiler.AnalyzeCaptures(fn) {
		result.AddError(w.Message)
	}

	actx := &AssertionContext{
		Func: fn,
		Rerun: func() (*Result, error) {
			again, err := loadProgram(scenario.Program, scenario.Func)
			if err != nil {
				return nil, err
			}
			h.clock.Reset()
			report, firings, err := h.transform(ctx, again, scenario.config())
			if err != nil {
				return nil, err
			}
			rerun := NewResult()
			rerun.Report = report
			rerun.Printed = ir.FuncString(again)
			for _, f := range firings {
				rerun.AddFiringTrace(f.Seq, f.Phase, f.Pattern, f.RootKind, f.Tasks)
			}
			return rerun, nil
		},
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// transform runs the pass over fn, collecting its firings.
func (h *Harness) transform(ctx context.Context, fn *ir.Func, cfg fusion.Config) (*fusion.Report, []fusion.PhaseFiring, error) {
	var firings []fusion.PhaseFiring
	report, err := fusion.Run(ctx, fn,
		fusion.WithConfig(cfg),
		fusion.WithLogger(h.logger),
		fusion.WithSeqSource(h.clock),
		fusion.WithFiringListener(func(f fusion.PhaseFiring) { firings = append(firings, f) }),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run pass: %w", err)
	}
	return report, firings, nil
}

// loadProgram compiles function name of the CUE file at path. An empty
// name selects the only function of the file.
func loadProgram(path, name string) (*ir.Func, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}

	funcs := v.LookupPath(cue.MakePath(cue.Str("func")))
	if name == "" {
		iter, err := funcs.Fields()
		if err != nil {
			return nil, fmt.Errorf("program has no functions: %w", err)
		}
		var names []string
		for iter.Next() {
			names = append(names, iter.Label())
		}
		if len(names) != 1 {
			return nil, fmt.Errorf("program defines %d functions, scenario must name one", len(names))
		}
		name = names[0]
	}

	fn, err := compiler.CompileFunc(funcs.LookupPath(cue.MakePath(cue.Str(name))))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", name, err)
	}
	return fn, nil
}
