package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
)

// ErrNoRuns is returned by LatestRun on an empty store.
var ErrNoRuns = errors.New("store has no runs")

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root, seed, engine_version, wire_version, created_at
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// LatestRun returns the most recently created run. Run IDs are UUIDv7, so
// ordering by id breaks created_at ties in creation order.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root, seed, engine_version, wire_version, created_at
		FROM runs
		ORDER BY created_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

func scanRun(row *sql.Row) (Run, error) {
	var run Run
	var seed int64
	if err := row.Scan(&run.ID, &run.Root, &seed, &run.EngineVersion, &run.WireVersion, &run.CreatedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Seed = uint64(seed)
	return run, nil
}

// ReadCorpus returns every execution stored for a run.
// Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no executions.
func (s *Store) ReadCorpus(ctx context.Context, runID string) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, mode, buffer, calls, failures
		FROM executions
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	execs := []Execution{}
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.RunID, &e.Seq, &e.Mode, &e.Buffer, &e.Calls, &e.Failures); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return execs, nil
}

// ReadExecution retrieves a single execution by content hash. When several
// runs stored the sequence, the copy from the earliest created run is
// returned. Returns sql.ErrNoRows if not found.
func (s *Store) ReadExecution(ctx context.Context, id string) (Execution, error) {
	var e Execution
	err := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.run_id, e.seq, e.mode, e.buffer, e.calls, e.failures
		FROM executions e
		JOIN runs r ON r.id = e.run_id
		WHERE e.id = ?
		ORDER BY r.created_at, r.rowid
		LIMIT 1
	`, id).Scan(&e.ID, &e.RunID, &e.Seq, &e.Mode, &e.Buffer, &e.Calls, &e.Failures)
	if err != nil {
		return Execution{}, fmt.Errorf("read execution: %w", err)
	}
	return e, nil
}

// ReadCallStats returns a run's counters ordered by instance then function.
func (s *Store) ReadCallStats(ctx context.Context, runID string) ([]CallStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance, function, calls, failures
		FROM call_stats
		WHERE run_id = ?
		ORDER BY instance COLLATE BINARY ASC, function COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query call stats: %w", err)
	}
	defer rows.Close()

	stats := []CallStat{}
	for rows.Next() {
		var st CallStat
		var calls, failures int64
		if err := rows.Scan(&st.Key.Instance, &st.Key.Function, &calls, &failures); err != nil {
			return nil, fmt.Errorf("scan call stats: %w", err)
		}
		st.Calls, st.Failures = uint64(calls), uint64(failures)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call stats: %w", err)
	}
	return stats, nil
}

// ReadInstances returns a run's instances in discovery order.
func (s *Store) ReadInstances(ctx context.Context, runID string) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type_name, handle, seq
		FROM instances
		WHERE run_id = ?
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	out := []Instance{}
	for rows.Next() {
		var inst Instance
		var handle int64
		if err := rows.Scan(&inst.Name, &inst.TypeName, &handle, &inst.Seq); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		inst.Handle = ir.Handle(handle)
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}
