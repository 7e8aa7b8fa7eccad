package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dataflow/internal/fusion"
)

// WriteRun inserts a run record and assigns its seq, one past the highest
// recorded so far. Returns the seq and whether a new record was inserted.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency. If the run already
// exists, returns its existing seq and inserted=false.
func (s *Store) WriteRun(ctx context.Context, run Run) (seq int64, inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, inserted, err = writeRunTx(ctx, tx, run)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, inserted, nil
}

func writeRunTx(ctx context.Context, tx *sql.Tx, run Run) (int64, bool, error) {
	statsJSON, err := marshalStats(run.Stats)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, func_name, fingerprint_before, fingerprint_after, converged, nodes, seq, stats, pass_version, ir_version)
		SELECT ?, ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
		FROM runs
		WHERE true
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Func,
		run.FingerprintBefore,
		run.FingerprintAfter,
		run.Converged,
		run.Nodes,
		statsJSON,
		run.PassVersion,
		run.IRVersion,
	)
	if err != nil {
		return 0, false, fmt.Errorf("write run: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("write run: rows affected: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, run.ID).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("write run: select seq: %w", err)
	}
	return seq, rowsAffected > 0, nil
}

// WriteFiring inserts a firing record.
// Uses ON CONFLICT(run_id, seq) DO NOTHING - duplicate writes are silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteFiring(ctx context.Context, f Firing) error {
	return writeFiring(ctx, s.db, f)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeFiring(ctx context.Context, db execer, f Firing) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO firings
		(run_id, seq, phase, pattern, root_kind, tasks)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		f.RunID,
		f.Seq,
		f.Phase,
		f.Pattern,
		f.RootKind,
		f.Tasks,
	)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	return nil
}

// RecordRun atomically writes the run of a pass report together with all
// its firings, and returns the stored run with its seq filled in.
func (s *Store) RecordRun(ctx context.Context, report *fusion.Report, firings []fusion.PhaseFiring) (Run, error) {
	run := NewRun(report)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("record run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, _, err := writeRunTx(ctx, tx, run)
	if err != nil {
		return Run{}, err
	}
	run.Seq = seq

	for _, f := range firings {
		if err := writeFiring(ctx, tx, NewFiring(run.ID, f)); err != nil {
			return Run{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("record run: commit: %w", err)
	}
	return run, nil
}
