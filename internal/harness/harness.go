package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/ifuzz/internal/config"
	"github.com/roach88/ifuzz/internal/engine"
	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/loopback"
	"github.com/roach88/ifuzz/internal/mutator"
	"github.com/roach88/ifuzz/internal/store"
	"github.com/roach88/ifuzz/internal/testutil"
)

// invokerStream separates the loopback invoker's random stream from the
// engine's when both derive from the scenario seed.
const invokerStream = 0x2545f4914f6cdd1d

// SchemaLoader compiles, links and validates the interfaces of a schema
// directory.
type SchemaLoader func(dir string) ([]ir.InterfaceSpec, error)

// Harness runs the sessions of one scenario.
type Harness struct {
	scenario *Scenario
	specs    []ir.InterfaceSpec
	cfg      mutator.Config
	failure  mutator.Odds
	logger   *slog.Logger
}

// session is the outcome of one engine run.
type session struct {
	stats  engine.Stats
	corpus []CorpusEntry
	store  *store.Store
	runID  string
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the schema directory
//  2. Step the engine Iterations times against a seeded loopback invoker,
//     storing the corpus in a fresh in-memory database
//  3. Evaluate assertions against the stats, the store and the corpus
func Run(ctx context.Context, scenario *Scenario, load SchemaLoader) (*Result, error) {
	specs, err := load(scenario.Schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		specs:    specs,
		cfg:      mutator.DefaultConfig(),
		failure:  mutator.Odds{For: 0, Against: 1},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if scenario.FailureOdds != "" {
		h.failure, err = config.ParseOdds(scenario.FailureOdds)
		if err != nil {
			return nil, fmt.Errorf("failure_odds: %w", err)
		}
	}

	s, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.store.Close()

	result := NewResult()
	result.Stats = s.stats
	result.Corpus = s.corpus

	actx := &AssertionContext{
		Ctx:   ctx,
		Store: s.store,
		RunID: s.runID,
		Rerun: func() ([]CorpusEntry, error) {
			again, err := h.session(ctx)
			if err != nil {
				return nil, err
			}
			defer again.store.Close()
			return again.corpus, nil
		},
	}
	for _, msg := range EvaluateAssertions(result, h.scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"executions", result.Stats.Executions,
	)
	return result, nil
}

// session runs the engine once. The returned store is open; the caller
// closes it.
func (h *Harness) session(ctx context.Context) (*session, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	s, err := h.drive(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func (h *Harness) drive(ctx context.Context, st *store.Store) (*session, error) {
	seed := h.scenario.Seed
	inv := loopback.New(h.specs, h.cfg, rand.New(rand.NewPCG(seed, seed^invokerStream)),
		loopback.WithFailureOdds(h.failure))

	opts := []engine.Option{
		engine.WithStore(st),
		engine.WithSeed(seed),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(h.scenario.Name)),
	}
	if h.scenario.ExecSize > 0 {
		opts = append(opts, engine.WithExecSize(h.scenario.ExecSize))
	}
	eng, err := engine.New(ctx, h.specs, h.scenario.Root, inv, h.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	var buf []byte
	for i := 0; i < h.scenario.Iterations; i++ {
		report, err := eng.Step(ctx, buf)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		buf = report.Buffer
		h.logger.Debug("step completed",
			"step", i,
			"mode", report.Mode.String(),
			"calls", len(report.Calls),
			"failures", report.Failures(),
		)
	}

	stored, err := st.ReadCorpus(ctx, eng.RunID())
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	corpus, err := decodeCorpus(stored)
	if err != nil {
		return nil, err
	}

	return &session{
		stats:  eng.Stats(),
		corpus: corpus,
		store:  st,
		runID:  eng.RunID(),
	}, nil
}

// errUndecodable marks a stored buffer the engine itself cannot decode.
var errUndecodable = errors.New("stored sequence does not decode")

func decodeCorpus(stored []store.Execution) ([]CorpusEntry, error) {
	corpus := make([]CorpusEntry, 0, len(stored))
	for _, exec := range stored {
		spec, ok := ir.Deserialize(exec.Buffer)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUndecodable, exec.ID)
		}
		entry := CorpusEntry{
			Seq:      exec.Seq,
			ID:       exec.ID,
			Mode:     exec.Mode,
			Failures: exec.Failures,
			Calls:    make([]string, len(spec.Calls)),
		}
		for i, c := range spec.Calls {
			entry.Calls[i] = ir.FormatCall(c)
		}
		corpus = append(corpus, entry)
	}
	return corpus, nil
}
