package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/store"
)

// CorpusOptions holds flags for the corpus command.
type CorpusOptions struct {
	*RootOptions
	Database string
	RunID    string
	Instance string // optional - only sequences calling this instance
}

// CorpusEntry is one stored sequence in the listing.
type CorpusEntry struct {
	Seq      int64    `json:"seq"`
	ID       string   `json:"id"`
	Mode     string   `json:"mode"`
	Failures int      `json:"failures"`
	Calls    []string `json:"calls"`
}

// CorpusStats summarizes the listing.
type CorpusStats struct {
	Listed    int `json:"listed"`
	Total     int `json:"total"`
	Generated int `json:"generated"`
	Mutated   int `json:"mutated"`
	Undecoded int `json:"undecoded"`
}

// CorpusResult holds the corpus listing of a run.
type CorpusResult struct {
	RunID   string        `json:"run_id"`
	Entries []CorpusEntry `json:"entries"`
	Stats   CorpusStats   `json:"stats"`
}

// NewCorpusCommand creates the corpus command.
func NewCorpusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CorpusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "List the stored sequences of a run",
		Long: `List a run's corpus in execution order.

With --instance, only sequences that call the named instance are listed.
With --verbose, every call of every sequence is printed.

Examples:
  ifuzz corpus --db ./ifuzz.db
  ifuzz corpus --db ./ifuzz.db --instance IBar --verbose
  ifuzz corpus --db ./ifuzz.db --run 0191e8a4-... --format json`,
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
			return runCorpus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to list (default: latest)")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "only list sequences calling this instance")

	return cmd
}

func runCorpus(opts *CorpusOptions, cmd *cobra.Command) error {
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
	corpus, err := st.ReadCorpus(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read corpus", err)
	}

	result := CorpusResult{RunID: run.ID, Entries: buildEntries(corpus, opts.Instance)}
	result.Stats = corpusStats(corpus, result.Entries)

	if opts.Format == "json" {
		return WriteJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputCorpusText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// buildEntries decodes each stored sequence. When instance is set, only
// sequences with at least one call on it are kept. A buffer that no longer
// decodes is listed with no calls.
func buildEntries(corpus []store.Execution, instance string) []CorpusEntry {
	entries := []CorpusEntry{}
	for _, exec := range corpus {
		spec, ok := ir.Deserialize(exec.Buffer)
		if instance != "" && (!ok || !callsInstance(spec, instance)) {
			continue
		}
		entry := CorpusEntry{
			Seq:      exec.Seq,
			ID:       exec.ID,
			Mode:     exec.Mode,
			Failures: exec.Failures,
			Calls:    []string{},
		}
		if ok {
			for _, c := range spec.Calls {
				entry.Calls = append(entry.Calls, ir.FormatCall(c))
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func callsInstance(spec ir.ExecutionSpec, instance string) bool {
	for _, c := range spec.Calls {
		if c.Instance == instance {
			return true
		}
	}
	return false
}

func corpusStats(corpus []store.Execution, entries []CorpusEntry) CorpusStats {
	s := CorpusStats{Listed: len(entries), Total: len(corpus)}
	for _, exec := range corpus {
		switch exec.Mode {
		case "generate":
			s.Generated++
		case "mutate":
			s.Mutated++
		}
		if _, ok := ir.Deserialize(exec.Buffer); !ok {
			s.Undecoded++
		}
	}
	return s
}

func outputCorpusText(w io.Writer, result CorpusResult, verbose bool) {
	fmt.Fprintf(w, "Corpus for Run: %s\n", result.RunID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Sequences ===")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no sequences)")
	}
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  [%d] %-8s %s  %d call(s), %d failed\n", e.Seq, e.Mode, truncateID(e.ID), len(e.Calls), e.Failures)
		if verbose {
			for _, c := range e.Calls {
				fmt.Fprintf(w, "       %s\n", c)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Listed:    %d of %d\n", result.Stats.Listed, result.Stats.Total)
	fmt.Fprintf(w, "  Generated: %d\n", result.Stats.Generated)
	fmt.Fprintf(w, "  Mutated:   %d\n", result.Stats.Mutated)
	if result.Stats.Undecoded > 0 {
		fmt.Fprintf(w, "  Undecoded: %d\n", result.Stats.Undecoded)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
