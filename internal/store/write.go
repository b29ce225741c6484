package store

import (
	"context"
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
)

// Run is one engine instance's metadata.
type Run struct {
	ID            string
	Root          string
	Seed          uint64
	EngineVersion string
	WireVersion   int
	CreatedAt     string
}

// Execution is one stored sequence. Buffer is the ir.Serialize output.
type Execution struct {
	ID       string
	RunID    string
	Seq      int64
	Mode     string
	Buffer   []byte
	Calls    int
	Failures int
}

// CallStat accumulates calls and failures for one function of one instance.
type CallStat struct {
	Key      ir.CallKey
	Calls    uint64
	Failures uint64
}

// Instance is a registered interface instance as recorded by a run.
type Instance struct {
	Name     string
	TypeName string
	Handle   ir.Handle
	Seq      int64
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
//
// Seeds above MaxInt64 are stored as their two's-complement int64 bit
// pattern, since SQLite integers are signed.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, root, seed, engine_version, wire_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Root,
		int64(run.Seed),
		run.EngineVersion,
		run.WireVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteExecution adds a sequence to the corpus. It reports whether the row
// was new: a sequence the same run already stored under the same content
// hash is left untouched and returns false. Other runs keep their own copy.
//
// The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteExecution(ctx context.Context, exec Execution) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, run_id, seq, mode, buffer, calls, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO NOTHING
	`,
		exec.ID,
		exec.RunID,
		exec.Seq,
		exec.Mode,
		exec.Buffer,
		exec.Calls,
		exec.Failures,
	)
	if err != nil {
		return false, fmt.Errorf("write execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write execution: %w", err)
	}
	return n > 0, nil
}

// AddCallStats adds deltas to a function's counters, creating the row on
// first use.
func (s *Store) AddCallStats(ctx context.Context, runID string, stat CallStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_stats (run_id, instance, function, calls, failures)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, instance, function) DO UPDATE SET
			calls = calls + excluded.calls,
			failures = failures + excluded.failures
	`,
		runID,
		stat.Key.Instance,
		stat.Key.Function,
		int64(stat.Calls),
		int64(stat.Failures),
	)
	if err != nil {
		return fmt.Errorf("add call stats %s: %w", stat.Key, err)
	}
	return nil
}

// WriteInstance records a registered instance. Re-registering a name within
// the same run is silently ignored.
func (s *Store) WriteInstance(ctx context.Context, runID string, inst Instance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (run_id, name, type_name, handle, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO NOTHING
	`,
		runID,
		inst.Name,
		inst.TypeName,
		int64(inst.Handle),
		inst.Seq,
	)
	if err != nil {
		return fmt.Errorf("write instance %s: %w", inst.Name, err)
	}
	return nil
}
