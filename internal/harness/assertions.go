package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] phase %d %s on %s (%d tasks)\n",
				event.Seq, event.Phase, event.Pattern, event.RootKind, event.Tasks)
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the transformed function
// and a way to run the scenario again.
type AssertionContext struct {
	Func  *ir.Func
	Rerun func() (*Result, error)
}

// EvaluateAssertions checks every assertion and returns the messages of
// those that fail.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTaskCount, AssertUnclustered, AssertTaskKinds:
			if actx == nil || actx.Func == nil {
				err = fmt.Errorf("assertion[%d]: %s requires the transformed function", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertTaskCount:
				err = assertTaskCount(actx.Func, assertion)
			case AssertUnclustered:
				err = assertUnclustered(actx.Func, assertion)
			default:
				err = assertTaskKinds(actx.Func, assertion)
			}
		case AssertFiringCount:
			err = assertFiringCount(result.Trace, assertion)
		case AssertFiringOrder:
			err = assertFiringOrder(result.Trace, assertion)
		case AssertConverged:
			err = assertConverged(result)
		case AssertDeterministic:
			if actx == nil || actx.Rerun == nil {
				err = fmt.Errorf("assertion[%d]: deterministic requires a rerun", i)
			} else {
				err = assertDeterministic(result, actx.Rerun)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func tasks(fn *ir.Func) []*ir.Operation {
	var out []*ir.Operation
	fn.Walk(func(op *ir.Operation) {
		if op.Kind() == ir.KindTask {
			out = append(out, op)
		}
	})
	return out
}

func assertTaskCount(fn *ir.Func, assertion Assertion) error {
	if n := len(tasks(fn)); n != assertion.Count {
		return &AssertionError{
			Type:     AssertTaskCount,
			Expected: fmt.Sprintf("%d task node(s)", assertion.Count),
			Actual:   fmt.Sprintf("%d task node(s)", n),
		}
	}
	return nil
}

func assertUnclustered(fn *ir.Func, assertion Assertion) error {
	if n := fusion.CountUnclustered(fn, assertion.Kind); n != assertion.Count {
		what := "compute operation(s)"
		if assertion.Kind != "" {
			what = assertion.Kind
		}
		return &AssertionError{
			Type:     AssertUnclustered,
			Expected: fmt.Sprintf("%d %s outside tasks", assertion.Count, what),
			Actual:   fmt.Sprintf("%d %s outside tasks", n, what),
		}
	}
	return nil
}

// assertTaskKinds compares the body of one task, without its terminator,
// with the expected kinds.
func assertTaskKinds(fn *ir.Func, assertion Assertion) error {
	all := tasks(fn)
	if assertion.Task >= len(all) {
		return &AssertionError{
			Type:     AssertTaskKinds,
			Expected: fmt.Sprintf("task %d", assertion.Task),
			Actual:   fmt.Sprintf("only %d task node(s)", len(all)),
		}
	}

	var kinds []string
	for _, op := range all[assertion.Task].Body().Operations() {
		if !ir.IsTerminator(op.Kind()) {
			kinds = append(kinds, op.Kind())
		}
	}
	if !reflect.DeepEqual(kinds, assertion.Kinds) {
		return &AssertionError{
			Type:     AssertTaskKinds,
			Expected: fmt.Sprintf("task %d holds %v", assertion.Task, assertion.Kinds),
			Actual:   fmt.Sprintf("task %d holds %v", assertion.Task, kinds),
		}
	}
	return nil
}

func assertFiringCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Pattern == assertion.Pattern {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertFiringCount,
			Expected: fmt.Sprintf("%s fires %d time(s)", assertion.Pattern, assertion.Count),
			Actual:   fmt.Sprintf("%s fires %d time(s)", assertion.Pattern, count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFiringOrder checks that the patterns occur in the trace in order.
// Firings don't need to be consecutive (intervening firings are allowed).
func assertFiringOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Patterns) && event.Pattern == assertion.Patterns[next] {
			next++
		}
	}

	if next < len(assertion.Patterns) {
		return &AssertionError{
			Type:     AssertFiringOrder,
			Expected: fmt.Sprintf("firings in order %v", assertion.Patterns),
			Actual:   fmt.Sprintf("%s not found after %v", assertion.Patterns[next], assertion.Patterns[:next]),
			Trace:    trace,
		}
	}
	return nil
}

func assertConverged(result *Result) error {
	if result.Report == nil {
		return fmt.Errorf("converged: no pass report")
	}
	for _, ph := range result.Report.Phases {
		if !ph.Converged {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: "every phase reaches a fixpoint",
				Actual:   fmt.Sprintf("phase %d stopped after %d iteration(s)", ph.Phase, ph.Iterations),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertDeterministic runs the scenario again and compares fingerprints,
// printed output and firings.
func assertDeterministic(result *Result, rerun func() (*Result, error)) error {
	again, err := rerun()
	if err != nil {
		return fmt.Errorf("deterministic: rerun failed: %w", err)
	}

	switch {
	case result.Report.FingerprintAfter != again.Report.FingerprintAfter:
		return &AssertionError{
			Type:     AssertDeterministic,
			Expected: "fingerprint " + result.Report.FingerprintAfter,
			Actual:   "fingerprint " + again.Report.FingerprintAfter,
		}
	case result.Printed != again.Printed:
		return &AssertionError{
			Type:     AssertDeterministic,
			Expected: result.Printed,
			Actual:   again.Printed,
		}
	case !reflect.DeepEqual(result.Trace, again.Trace):
		return &AssertionError{
			Type:     AssertDeterministic,
			Expected: fmt.Sprintf("%d identical firing(s)", len(result.Trace)),
			Actual:   fmt.Sprintf("%v", again.Trace),
			Trace:    result.Trace,
		}
	}
	return nil
}
