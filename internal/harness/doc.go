// Package harness runs the dataflow pass over CUE programs described by
// YAML scenarios and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	program: programs/net.cue   # relative to the scenario file
//	func: net                   # optional when the file holds one function
//	config:                     # optional, defaults to fusion.DefaultConfig
//	  phases:
//	    - outline: [tosa.conv2d]
//	      backward_fuse: [tosa.clamp]
//	assertions:
//	  - type: task_count
//	    count: 2
//	  - type: firing_order
//	    patterns: [outline, backward-fuse]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - task_count: Number of task nodes after the pass
//   - unclustered: Compute operations left outside tasks, optionally of one kind
//   - task_kinds: Operation kinds inside the task at a given index
//   - firing_count: Number of firings of a pattern
//   - firing_order: Patterns fire in the given order (other firings may intervene)
//   - converged: Every phase reached a fixpoint
//   - deterministic: A second run yields the same fingerprint and firings
//
// Every run also checks that the output passes compiler.Validate and has
// no cyclic captures.
//
// # Deterministic Testing
//
// The harness uses:
//   - Deterministic logical clock (testutil.DeterministicClock)
//   - In-memory SQLite database (isolated per run); the trace is read back
//     from the recorded firings
//
// This ensures identical traces across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/conv_net.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
