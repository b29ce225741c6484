package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ifuzz/internal/engine"
	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/loopback"
	"github.com/roach88/ifuzz/internal/mutator"
	"github.com/roach88/ifuzz/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
}

// ReplayExecutionResult holds the replay result for one stored execution.
type ReplayExecutionResult struct {
	ID            string `json:"id"`
	Seq           int64  `json:"seq"`
	Mode          string `json:"mode"`
	Calls         int    `json:"calls"`
	Failures      int    `json:"failures"`
	Verified      bool   `json:"verified"` // buffer still hashes to its ID
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	RunID            string                  `json:"run_id"`
	Executions       []ReplayExecutionResult `json:"executions"`
	TotalExecutions  int                     `json:"total_executions"`
	AllVerified      bool                    `json:"all_verified"`
	AllDeterministic bool                    `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [schema-dir]",
		Short: "Replay a stored corpus and verify determinism",
		Long: `Replay every stored execution of a run, in order, against the loopback
invoker seeded with the run's seed.

Each buffer must still hash to its stored execution ID. The corpus is
replayed twice on fresh engines and the two passes must agree call for
call.

Exit codes:
  0 - Every execution verified and deterministic
  1 - Verification or determinism failed
  2 - Command error (database not found, etc.)

Examples:
  ifuzz replay --db ./ifuzz.db ./schemas
  ifuzz replay --db ./ifuzz.db --run 0191e8a4-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.SchemaDir = args[0]
			}
			if cmd.Flags().Changed("db") {
				cfg.DB = opts.Database
			}
			return runReplay(opts, cfg.SchemaDir, cfg.DB, cfg.MutatorConfig(), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only (default: latest)")

	return cmd
}

func runReplay(opts *ReplayOptions, schemaDir, dbPath string, mcfg mutator.Config, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExistingStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}

	specs, err := LoadInterfaces(schemaDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schemas", err)
	}

	corpus, err := st.ReadCorpus(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read corpus", err)
	}

	first, err := replayCorpus(ctx, specs, run, corpus, mcfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "first replay failed", err)
	}
	second, err := replayCorpus(ctx, specs, run, corpus, mcfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "second replay failed", err)
	}

	result := ReplayResult{
		RunID:            run.ID,
		Executions:       make([]ReplayExecutionResult, 0, len(corpus)),
		TotalExecutions:  len(corpus),
		AllVerified:      true,
		AllDeterministic: true,
	}
	for i, exec := range corpus {
		r := ReplayExecutionResult{
			ID:            exec.ID,
			Seq:           exec.Seq,
			Mode:          exec.Mode,
			Calls:         len(first[i].Calls),
			Failures:      first[i].Failures(),
			Verified:      first[i].ID == exec.ID,
			Deterministic: reportsEqual(first[i], second[i]),
		}
		result.AllVerified = result.AllVerified && r.Verified
		result.AllDeterministic = result.AllDeterministic && r.Deterministic
		result.Executions = append(result.Executions, r)
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayCorpus replays every execution on a fresh engine that does not
// write to the store.
func replayCorpus(ctx context.Context, specs []ir.InterfaceSpec, run store.Run, corpus []store.Execution, mcfg mutator.Config) ([]*engine.Report, error) {
	inv := loopback.New(specs, mcfg, rand.New(rand.NewPCG(run.Seed, run.Seed^loopbackStream)))
	eng, err := engine.New(ctx, specs, run.Root, inv, mcfg,
		engine.WithSeed(run.Seed),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(run.ID)),
	)
	if err != nil {
		return nil, err
	}

	reports := make([]*engine.Report, 0, len(corpus))
	for _, exec := range corpus {
		report, err := eng.Replay(ctx, exec.Buffer)
		if err != nil {
			return nil, fmt.Errorf("execution %s: %w", exec.ID, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// reportsEqual compares two replays of the same buffer call for call.
func reportsEqual(a, b *engine.Report) bool {
	if a.ID != b.ID || len(a.Calls) != len(b.Calls) {
		return false
	}
	for i := range a.Calls {
		ca, cb := a.Calls[i], b.Calls[i]
		if ca.Key != cb.Key || (ca.Err == nil) != (cb.Err == nil) || len(ca.Results) != len(cb.Results) {
			return false
		}
		for j := range ca.Results {
			if !ir.Equal(ca.Results[j], cb.Results[j]) {
				return false
			}
		}
	}
	return true
}

// openExistingStore opens a database that must already exist.
func openExistingStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "database path is required (--db, db or IFUZZ_DB)")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// resolveRun reads the named run, or the latest one when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	switch {
	case errors.Is(err, store.ErrNoRuns):
		return store.Run{}, NewExitError(ExitCommandError, "database has no runs")
	case errors.Is(err, sql.ErrNoRows):
		return store.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	case err != nil:
		return store.Run{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return run, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  result.RunID,
	}

	ok := result.AllVerified && result.AllDeterministic
	if !ok {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplay,
			Message: replayFailure(result),
		}
	}

	if err := WriteJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if !ok {
		return NewExitError(ExitFailure, replayFailure(result))
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: run %s, %d execution(s)\n", result.RunID, result.TotalExecutions)
	fmt.Fprintln(w)

	for _, exec := range result.Executions {
		status := "✓"
		if !exec.Verified || !exec.Deterministic {
			status = "✗"
		}
		if verbose || status == "✗" {
			fmt.Fprintf(w, "%s %6d %-8s %s  %d call(s), %d failed\n", status, exec.Seq, exec.Mode, exec.ID[:min(12, len(exec.ID))], exec.Calls, exec.Failures)
		}
		if !exec.Verified {
			fmt.Fprintln(w, "  Warning: buffer does not hash to its execution ID!")
		}
		if !exec.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
	}

	if result.AllVerified && result.AllDeterministic {
		fmt.Fprintln(w, "✓ All executions verified deterministic")
		return nil
	}

	fmt.Fprintf(w, "✗ %s\n", replayFailure(result))
	return NewExitError(ExitFailure, replayFailure(result))
}

func replayFailure(result ReplayResult) string {
	if !result.AllVerified {
		return "corpus verification failed"
	}
	return "determinism verification failed"
}
