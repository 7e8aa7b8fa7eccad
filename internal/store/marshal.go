package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/dataflow/internal/fusion"
	"github.com/roach88/dataflow/internal/ir"
)

// Run is one recorded execution of the pass over a function.
type Run struct {
	ID                string       `json:"id"`
	Func              string       `json:"func"`
	FingerprintBefore string       `json:"fingerprint_before"`
	FingerprintAfter  string       `json:"fingerprint_after"`
	Converged         bool         `json:"converged"`
	Nodes             int          `json:"nodes"`
	Seq               int64        `json:"seq"`
	Stats             fusion.Stats `json:"stats"`
	PassVersion       string       `json:"pass_version"`
	IRVersion         string       `json:"ir_version"`
}

// Firing is one rule firing of a run.
type Firing struct {
	RunID    string `json:"run_id"`
	Seq      int64  `json:"seq"`
	Phase    int    `json:"phase"`
	Pattern  string `json:"pattern"`
	RootKind string `json:"root_kind"`
	Tasks    int    `json:"tasks"`
}

// NewRun builds the record of a pass report under a fresh UUIDv7.
// Seq is assigned by WriteRun.
func NewRun(r *fusion.Report) Run {
	return Run{
		ID:                uuid.Must(uuid.NewV7()).String(),
		Func:              r.Func,
		FingerprintBefore: r.FingerprintBefore,
		FingerprintAfter:  r.FingerprintAfter,
		Converged:         r.Converged(),
		Nodes:             r.Stats.Tasks,
		Stats:             r.Stats,
		PassVersion:       ir.PassVersion,
		IRVersion:         ir.IRVersion,
	}
}

// NewFiring converts a pass firing into a record of run runID.
func NewFiring(runID string, f fusion.PhaseFiring) Firing {
	return Firing{
		RunID:    runID,
		Seq:      f.Seq,
		Phase:    f.Phase,
		Pattern:  f.Pattern,
		RootKind: f.RootKind,
		Tasks:    f.Tasks,
	}
}

// marshalStats converts Stats to canonical JSON TEXT for storage.
func marshalStats(s fusion.Stats) (string, error) {
	data, err := ir.MarshalCanonical(map[string]any{
		"tasks":        s.Tasks,
		"clustered":    s.Clustered,
		"unclustered":  s.Unclustered,
		"largest_task": s.LargestTask,
		"schedules":    s.Schedules,
	})
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return string(data), nil
}

// unmarshalStats parses canonical JSON TEXT to Stats.
func unmarshalStats(data string) (fusion.Stats, error) {
	var s fusion.Stats
	if data == "" || data == "{}" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return fusion.Stats{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	return s, nil
}
