package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by ReadRun when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, func_name, fingerprint_before, fingerprint_after, converged, nodes, seq, stats, pass_version, ir_version`

// ReadRun retrieves a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns all runs ordered by seq ASC, id ASC COLLATE BINARY.
// A non-empty funcName restricts the list to runs of that function.
//
// Returns an empty slice (not nil) if no runs are recorded.
func (s *Store) ListRuns(ctx context.Context, funcName string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE ? = '' OR func_name = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, funcName, funcName)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadFirings returns the firings of a run in seq order.
//
// Returns an empty slice (not nil) if the run has no firings.
func (s *Store) ReadFirings(ctx context.Context, runID string) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, phase, pattern, root_kind, tasks
		FROM firings
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []Firing{}
	for rows.Next() {
		var f Firing
		if err := rows.Scan(&f.RunID, &f.Seq, &f.Phase, &f.Pattern, &f.RootKind, &f.Tasks); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// PatternCount is the number of firings of one pattern in one phase.
type PatternCount struct {
	Phase   int    `json:"phase"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// PatternCounts summarises the firings of a run per phase and pattern,
// ordered by phase then pattern name.
func (s *Store) PatternCounts(ctx context.Context, runID string) ([]PatternCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, pattern, COUNT(*)
		FROM firings
		WHERE run_id = ?
		GROUP BY phase, pattern
		ORDER BY phase ASC, pattern COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pattern counts: %w", err)
	}
	defer rows.Close()

	counts := []PatternCount{}
	for rows.Next() {
		var c PatternCount
		if err := rows.Scan(&c.Phase, &c.Pattern, &c.Count); err != nil {
			return nil, fmt.Errorf("scan pattern count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var statsJSON string
	if err := row.Scan(
		&run.ID, &run.Func, &run.FingerprintBefore, &run.FingerprintAfter,
		&run.Converged, &run.Nodes, &run.Seq, &statsJSON, &run.PassVersion, &run.IRVersion,
	); err != nil {
		return Run{}, err
	}

	stats, err := unmarshalStats(statsJSON)
	if err != nil {
		return Run{}, err
	}
	run.Stats = stats
	return run, nil
}
