package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/rewrite"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport creates a converged single-phase report.
func createTestReport(funcName string, tasks int) *fusion.Report {
	return &fusion.Report{
		Func:              funcName,
		FingerprintBefore: "before-" + funcName,
		FingerprintAfter:  "after-" + funcName,
		Phases:            []fusion.PhaseReport{{Phase: 1, Converged: true, Iterations: 3, Rewrites: tasks}},
		Stats:             fusion.Stats{Tasks: tasks, Clustered: tasks * 2, LargestTask: 2, Schedules: 1},
	}
}

// createTestFiring creates a firing of the given pattern.
func createTestFiring(seq int64, phase int, pattern string, tasks int) fusion.PhaseFiring {
	return fusion.PhaseFiring{
		Phase:  phase,
		Firing: rewrite.Firing{Seq: seq, Pattern: pattern, RootKind: "tosa.conv2d"},
		Tasks:  tasks,
	}
}
