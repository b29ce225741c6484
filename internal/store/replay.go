package store

import (
	"context"
	"fmt"
)

// RunSummary aggregates a run for reporting and resumption.
type RunSummary struct {
	Run        Run
	Executions int
	Generated  int
	Mutated    int
	Calls      uint64
	Failures   uint64
	Instances  []Instance
	LastSeq    int64
	CallStats  []CallStat
}

// Summarize collects a run's metadata, corpus totals, counters and instances.
func (s *Store) Summarize(ctx context.Context, runID string) (RunSummary, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize: %w", err)
	}
	sum := RunSummary{Run: run}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN mode = 'generate' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN mode = 'mutate' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(seq), 0)
		FROM executions
		WHERE run_id = ?
	`, runID).Scan(&sum.Executions, &sum.Generated, &sum.Mutated, &sum.LastSeq)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize executions: %w", err)
	}

	sum.CallStats, err = s.ReadCallStats(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize: %w", err)
	}
	for _, st := range sum.CallStats {
		sum.Calls += st.Calls
		sum.Failures += st.Failures
	}

	sum.Instances, err = s.ReadInstances(ctx, runID)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize: %w", err)
	}
	for _, inst := range sum.Instances {
		if inst.Seq > sum.LastSeq {
			sum.LastSeq = inst.Seq
		}
	}
	return sum, nil
}
