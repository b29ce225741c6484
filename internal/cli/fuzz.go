package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/ifuzz/internal/config"
	"github.com/roach88/ifuzz/internal/engine"
	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/loopback"
	"github.com/roach88/ifuzz/internal/store"
)

// loopbackStream separates the loopback invoker's random stream from the
// engine's when both are seeded from the run seed.
const loopbackStream = 0x9e3779b97f4a7c15

// FuzzOptions holds flags for the fuzz command.
type FuzzOptions struct {
	*RootOptions
	Database    string
	Root        string
	Iterations  int
	Seed        uint64
	ExecSize    int
	FailureOdds string
	Resume      string

	// RunIDGenerator allows overriding the run ID source (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// FuzzResult is the JSON payload of a finished run.
type FuzzResult struct {
	Seed  uint64       `json:"seed"`
	Stats engine.Stats `json:"stats"`
}

// NewFuzzCommand creates the fuzz command.
func NewFuzzCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FuzzOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fuzz [schema-dir]",
		Short: "Run the fuzzing loop over the loopback invoker",
		Long: `Run the generate/mutate/execute loop against an in-process loopback
invoker that answers every call from the schema.

Each iteration feeds the previous sequence back into the engine. While an
instance has never been called, fresh sequences are generated; afterwards
sequences are mutated. The run, its corpus, call counters and discovered
instances are stored in the database.

--resume continues a stored run under the same ID: its root and seed are
reused, the logical clock carries on after the run's last record, and the
first iteration starts from the run's latest sequence. Instances other than
the root are rediscovered, since handles do not outlive the process that
bound them.

Flags override the config file and IFUZZ_* environment variables.

Example:
  ifuzz fuzz --db ./ifuzz.db --root IFoo --iterations 1000 ./schemas
  ifuzz fuzz -c ifuzz.yaml --seed 42
  ifuzz fuzz --db ./ifuzz.db --resume 018f... --iterations 500 ./schemas`,
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
			if err := applyFuzzFlags(cmd, opts, cfg); err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			return runFuzz(opts, cfg, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Root, "root", "", "root interface type name")
	cmd.Flags().IntVarP(&opts.Iterations, "iterations", "n", 0, "number of iterations (0 runs until interrupted)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().IntVar(&opts.ExecSize, "exec-size", 0, "calls per generated sequence")
	cmd.Flags().StringVar(&opts.FailureOdds, "failure-odds", "0:1", "loopback call failure odds (for:against)")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "continue the stored run with this ID")

	return cmd
}

func applyFuzzFlags(cmd *cobra.Command, opts *FuzzOptions, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB = opts.Database
	}
	if flags.Changed("root") {
		cfg.RootInterface = opts.Root
	}
	if flags.Changed("iterations") {
		cfg.Iterations = opts.Iterations
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if flags.Changed("exec-size") {
		cfg.ExecSize = opts.ExecSize
	}
	if opts.Resume != "" {
		if flags.Changed("root") || flags.Changed("seed") {
			return errors.New("--resume reuses the run's root and seed; drop --root and --seed")
		}
		return cfg.Validate()
	}
	if cfg.RootInterface == "" {
		return errors.New("root interface is required (--root, root_interface or IFUZZ_ROOT)")
	}
	return cfg.Validate()
}

func runFuzz(opts *FuzzOptions, cfg *config.Config, cmd *cobra.Command) error {
	setupLogging(cfg.LogLevel, opts.Verbose)

	failure, err := config.ParseOdds(opts.FailureOdds)
	if err == nil {
		err = failure.Validate()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --failure-odds", err)
	}

	slog.Info("loading schemas", "dir", cfg.SchemaDir)
	specs, err := LoadInterfaces(cfg.SchemaDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schemas", err)
	}
	slog.Info("schemas loaded", "interfaces", len(specs))

	slog.Info("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	start := fuzzStart{root: cfg.RootInterface, seed: cfg.Seed}
	if start.seed == 0 {
		start.seed = rand.Uint64()
	}
	if opts.Resume != "" {
		if start, err = resumeRun(ctx, st, opts.Resume); err != nil {
			return err
		}
	}
	seed := start.seed
	mcfg := cfg.MutatorConfig()

	inv := loopback.New(specs, mcfg, rand.New(rand.NewPCG(seed, seed^loopbackStream^start.stream)),
		loopback.WithFailureOdds(failure))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	engineOpts := []engine.Option{
		engine.WithStore(st),
		engine.WithSeed(seed),
		engine.WithExecSize(cfg.ExecSize),
	}
	switch {
	case start.runID != "":
		engineOpts = append(engineOpts,
			engine.WithRand(rand.New(rand.NewPCG(seed, seed^start.stream))),
			engine.WithRunIDGenerator(engine.NewFixedGenerator(start.runID)),
			engine.WithClock(engine.NewClockAt(start.lastSeq)),
		)
	case opts.RunIDGenerator != nil:
		engineOpts = append(engineOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	eng, err := engine.New(ctx, specs, start.root, inv, mcfg, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	slog.Info("fuzzing", "run", eng.RunID(), "root", eng.Root(), "seed", seed, "iterations", cfg.Iterations)

	buf := start.buf
	for i := 0; cfg.Iterations == 0 || i < cfg.Iterations; i++ {
		report, err := eng.Step(ctx, buf)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if err != nil {
			return WrapExitError(ExitFailure, "engine error", err)
		}
		buf = report.Buffer
	}

	stats := eng.Stats()
	slog.Info("fuzzing stopped", "executions", stats.Executions, "calls", stats.Calls, "failures", stats.Failures)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if formatter.Format == "json" {
		return formatter.Success(FuzzResult{Seed: seed, Stats: stats})
	}
	fmt.Fprintf(formatter.Writer, "seed %d\n", seed)
	fmt.Fprint(formatter.Writer, stats.String())
	return nil
}

// fuzzStart is where a fuzz session begins: a fresh run, or the point a
// stored run stopped at.
type fuzzStart struct {
	root    string
	seed    uint64
	runID   string
	lastSeq int64
	// stream separates a resumed session's random draws from the ones the
	// run already made.
	stream uint64
	buf    []byte
}

// resumeRun reads the stored run id and returns the state to continue it
// from. The first buffer is the run's latest stored sequence.
func resumeRun(ctx context.Context, st *store.Store, id string) (fuzzStart, error) {
	run, err := resolveRun(ctx, st, id)
	if err != nil {
		return fuzzStart{}, err
	}
	if run.WireVersion != ir.WireVersion {
		return fuzzStart{}, NewExitError(ExitCommandError,
			fmt.Sprintf("run %s uses wire version %d, this build reads %d", run.ID, run.WireVersion, ir.WireVersion))
	}
	sum, err := st.Summarize(ctx, run.ID)
	if err != nil {
		return fuzzStart{}, WrapExitError(ExitCommandError, "failed to read run", err)
	}
	corpus, err := st.ReadCorpus(ctx, run.ID)
	if err != nil {
		return fuzzStart{}, WrapExitError(ExitCommandError, "failed to read corpus", err)
	}

	start := fuzzStart{
		root:    run.Root,
		seed:    run.Seed,
		runID:   run.ID,
		lastSeq: sum.LastSeq,
		stream:  uint64(sum.LastSeq),
	}
	if len(corpus) > 0 {
		start.buf = corpus[len(corpus)-1].Buffer
	}
	slog.Info("resuming run", "run", run.ID, "seq", sum.LastSeq, "corpus", len(corpus), "instances", len(sum.Instances))
	return start, nil
}
