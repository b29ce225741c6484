package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ifuzz/internal/engine"
	"github.com/roach88/ifuzz/internal/registry"
	"github.com/roach88/ifuzz/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// StatsResult is a stored run's report.
type StatsResult struct {
	Root  string       `json:"root"`
	Seed  uint64       `json:"seed"`
	Stats engine.Stats `json:"stats"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report a stored run's counters and instances",
		Long: `Print the corpus totals, per-function call counters and discovered
instances of a run. Defaults to the latest run in the database.

Examples:
  ifuzz stats --db ./ifuzz.db
  ifuzz stats --db ./ifuzz.db --run 0191e8a4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				cfg, err := loadConfig(opts.RootOptions)
				if err != nil {
					return err
				}
				opts.Database = cfg.DB
			}
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to report (default: latest)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return err
	}
	sum, err := st.Summarize(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize run", err)
	}

	result := StatsResult{Root: run.Root, Seed: run.Seed, Stats: summaryStats(sum)}
	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		return WriteJSON(w, CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}

	fmt.Fprintf(w, "root %s, seed %d\n", result.Root, result.Seed)
	fmt.Fprint(w, result.Stats.String())
	return nil
}

// summaryStats rebuilds the engine report from stored rows. An instance
// counts as touched once any of its functions has a counter row.
func summaryStats(sum store.RunSummary) engine.Stats {
	s := engine.Stats{
		RunID:      sum.Run.ID,
		Executions: sum.Executions,
		Generated:  sum.Generated,
		Mutated:    sum.Mutated,
		Calls:      sum.Calls,
		Failures:   sum.Failures,
		Functions:  make([]engine.FunctionStats, 0, len(sum.CallStats)),
		Instances:  make([]engine.InstanceStats, 0, len(sum.Instances)),
	}
	called := make(map[string]bool)
	for _, cs := range sum.CallStats {
		s.Functions = append(s.Functions, engine.FunctionStats{Key: cs.Key, Calls: cs.Calls, Failures: cs.Failures})
		if cs.Calls > 0 {
			called[cs.Key.Instance] = true
		}
	}
	for _, inst := range sum.Instances {
		state := registry.StateUntouched
		if called[inst.Name] {
			state = registry.StateTouched
		}
		s.Instances = append(s.Instances, engine.InstanceStats{
			Name:     inst.Name,
			TypeName: inst.TypeName,
			State:    state.String(),
		})
	}
	return s
}
