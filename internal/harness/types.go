package harness

import "github.com/roach88/dataflow/internal/fusion"

// TraceEvent is one recorded rule firing.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Phase    int    `json:"phase"`
	Pattern  string `json:"pattern"`
	RootKind string `json:"root_kind"`
	Tasks    int    `json:"tasks"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the output is well formed and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains all firings in seq order, as recorded in the store.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Printed is the transformed function in textual form.
	Printed string `json:"printed"`

	// Report is the pass report of the run.
	Report *fusion.Report `json:"report"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddFiringTrace adds a firing to the trace.
func (r *Result) AddFiringTrace(seq int64, phase int, pattern, rootKind string, tasks int) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:      seq,
		Phase:    phase,
		Pattern:  pattern,
		RootKind: rootKind,
		Tasks:    tasks,
	})
}
