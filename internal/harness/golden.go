package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/dataflow/internal/ir"
)

// TraceSnapshot captures the firing trace of a scenario execution.
// Serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = map[string]any{
			"seq":       event.Seq,
			"phase":     event.Phase,
			"pattern":   event.Pattern,
			"root_kind": event.RootKind,
			"tasks":     event.Tasks,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// TraceJSON renders the canonical JSON snapshot of a trace, the content
// of {name}.trace.golden.
func TraceJSON(scenarioName string, trace []TraceEvent) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its output against two
// golden files in testdata/golden: {name}.golden holds the printed
// function, {name}.trace.golden the canonical JSON firing trace.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result, or an error if scenario execution fails.
// Test failure (via goldie) occurs if the output doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the golden files of
// scenarioName without re-running it.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, []byte(result.Printed))
	g.Assert(t, scenarioName+".trace", traceJSON)

	return nil
}
