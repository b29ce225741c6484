package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/mutator"
	"github.com/roach88/ifuzz/internal/registry"
	"github.com/roach88/ifuzz/internal/store"
)

// DefaultExecSize is the number of calls in a freshly generated sequence.
const DefaultExecSize = 16

// RootHandle is the handle passed to InstantiateFromHandle for the root
// service, which no earlier call returned.
const RootHandle ir.Handle = 0

// ErrUnknownRoot is returned by New when the root interface has no spec.
var ErrUnknownRoot = errors.New("root interface not loaded")

// ErrInvalidBuffer is returned by Replay for a buffer that does not decode.
var ErrInvalidBuffer = errors.New("buffer is not a valid execution")

// Mode reports how a sequence was produced.
type Mode int

const (
	ModeGenerate Mode = iota
	ModeMutate
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeGenerate:
		return "generate"
	case ModeMutate:
		return "mutate"
	case ModeReplay:
		return "replay"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// CallResult is the outcome of one call of an executed sequence.
type CallResult struct {
	Key        ir.CallKey
	Results    []ir.Value
	Discovered []string
	Err        error
}

// Report is the outcome of one executed sequence.
type Report struct {
	// ID is the content hash of the sequence (ir.ExecutionID).
	ID string

	// Seq is the logical time the sequence started executing.
	Seq int64

	Mode Mode

	// Buffer is the serialized sequence, ready to hand back to the driver.
	Buffer []byte

	Calls []CallResult
}

// Failures counts the calls that did not complete.
func (r *Report) Failures() int {
	n := 0
	for _, c := range r.Calls {
		if c.Err != nil {
			n++
		}
	}
	return n
}

// Discovered returns every instance name registered while executing, in
// discovery order.
func (r *Report) Discovered() []string {
	var out []string
	for _, c := range r.Calls {
		out = append(out, c.Discovered...)
	}
	return out
}

// Engine is the fuzzing orchestrator. It owns the interface registry; only
// Execute mutates it.
//
// The engine is not safe for concurrent use.
type Engine struct {
	types   *ir.TypeRegistry
	reg     *registry.Registry
	mut     *mutator.Mutator
	invoker Invoker
	store   *store.Store
	clock   *Clock

	runIDGen RunIDGenerator
	runID    string
	root     string
	seed     uint64
	rng      *rand.Rand
	execSize int

	counters counters
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists the run, its corpus, call counters and discovered
// instances.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithSeed seeds the engine's PCG random source. Runs with the same seed,
// schema and invoker behavior produce the same sequences.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = seed
		e.rng = nil
	}
}

// WithRand supplies the random source directly. The recorded seed is left
// as is.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithExecSize sets the length of freshly generated sequences.
//
// Default: 16 calls (DefaultExecSize)
func WithExecSize(n int) Option {
	return func(e *Engine) {
		e.execSize = n
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ID source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDGen = g
	}
}

// WithClock starts the engine's logical clock at a given position.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New validates the schema, seeds the registry with the root interface and
// returns a ready engine.
//
// root names an interface by full or short type name. Its instance is
// obtained from invoker.InstantiateFromHandle(ctx, root, RootHandle).
//
// Schema shape violations are returned as *ir.InvariantError.
func New(
	ctx context.Context,
	specs []ir.InterfaceSpec,
	root string,
	invoker Invoker,
	cfg mutator.Config,
	opts ...Option,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mutator config: %w", err)
	}
	if err := validateSpecs(specs); err != nil {
		return nil, err
	}

	e := &Engine{
		invoker:  invoker,
		clock:    NewClock(),
		runIDGen: UUIDv7Generator{},
		seed:     rand.Uint64(),
		execSize: DefaultExecSize,
		counters: newCounters(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.execSize <= 0 {
		return nil, fmt.Errorf("exec size %d: must be positive", e.execSize)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(e.seed, e.seed))
	}

	e.types = ir.NewTypeRegistry(specs)
	e.reg = registry.New(specs)
	e.mut = mutator.New(cfg, e.types, e.rng)

	rootSpec, ok := e.reg.InterfaceSpec(root)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
	e.root = registry.ShortName(rootSpec.TypeName)
	e.runID = e.runIDGen.Generate()

	if e.store != nil {
		err := e.store.WriteRun(ctx, store.Run{
			ID:            e.runID,
			Root:          rootSpec.TypeName,
			Seed:          e.seed,
			EngineVersion: ir.EngineVersion,
			WireVersion:   ir.WireVersion,
		})
		if err != nil {
			return nil, err
		}
	}

	handle, err := invoker.InstantiateFromHandle(ctx, rootSpec.TypeName, RootHandle)
	if err != nil {
		return nil, fmt.Errorf("instantiate root %s: %w", rootSpec.TypeName, err)
	}
	if err := e.register(ctx, e.root, rootSpec, handle); err != nil {
		return nil, err
	}

	slog.Info("engine ready",
		"run", e.runID,
		"root", e.root,
		"interfaces", len(specs),
		"types", e.types.Len(),
		"seed", e.seed,
	)
	return e, nil
}

func validateSpecs(specs []ir.InterfaceSpec) error {
	for _, spec := range specs {
		if len(spec.Functions) == 0 {
			return ir.NewNoFunctionsError(spec.TypeName)
		}
		for _, t := range spec.NestedTypes {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("%s: %w", spec.TypeName, err)
			}
		}
		for _, fn := range spec.Functions {
			for i, t := range fn.Args {
				if err := t.Validate(); err != nil {
					return fmt.Errorf("%s.%s arg %d: %w", spec.TypeName, fn.Name, i, err)
				}
			}
			for i, t := range fn.Returns {
				if err := t.Validate(); err != nil {
					return fmt.Errorf("%s.%s return %d: %w", spec.TypeName, fn.Name, i, err)
				}
			}
		}
	}
	return nil
}

// RunID returns the ID this engine's stored records are grouped under.
func (e *Engine) RunID() string { return e.runID }

// Seed returns the seed of the engine's random source.
func (e *Engine) Seed() uint64 { return e.seed }

// Root returns the short name of the root instance.
func (e *Engine) Root() string { return e.root }

// Registry exposes the interface registry for inspection.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Types exposes the predefined type registry.
func (e *Engine) Types() *ir.TypeRegistry { return e.types }

// GenerateOrMutate turns a driver buffer into the next sequence to execute.
//
// The buffer is decoded and vetted against the registry. A buffer that fails
// either step, or any buffer while an untouched instance exists, yields a
// freshly generated sequence of the configured size. Otherwise the decoded
// sequence is mutated.
func (e *Engine) GenerateOrMutate(buf []byte) (ir.ExecutionSpec, Mode, error) {
	spec, ok := ir.Deserialize(buf)
	if ok {
		if err := mutator.Vet(e.reg, e.types, spec); err != nil {
			slog.Debug("discarding buffer", "error", err)
			ok = false
		}
	}

	if !ok || e.reg.UntouchedExists() {
		fresh, err := e.mut.GenerateSequence(e.reg, e.execSize)
		if err != nil {
			return ir.ExecutionSpec{}, ModeGenerate, fmt.Errorf("generate sequence: %w", err)
		}
		e.counters.generated++
		slog.Debug("generated sequence", "calls", len(fresh.Calls), "untouched", len(e.reg.Untouched()))
		return fresh, ModeGenerate, nil
	}

	op, err := e.mut.MutateSequence(e.reg, &spec)
	if err != nil {
		return ir.ExecutionSpec{}, ModeMutate, fmt.Errorf("mutate sequence: %w", err)
	}
	e.counters.mutated++
	slog.Debug("mutated sequence", "op", op, "calls", len(spec.Calls))
	return spec, ModeMutate, nil
}

// Execute runs every call of spec in order.
//
// A call that cannot be resolved or whose invocation fails is recorded in
// the Report and the sequence continues. Execute returns an error only for
// a cancelled context, a store failure, or an invariant violation; the
// partial Report is returned alongside it.
func (e *Engine) Execute(ctx context.Context, spec ir.ExecutionSpec) (*Report, error) {
	buf, err := ir.Serialize(&spec)
	if err != nil {
		return nil, err
	}
	id, err := ir.ExecutionID(spec)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:     id,
		Seq:    e.clock.Next(),
		Buffer: buf,
		Calls:  make([]CallResult, 0, len(spec.Calls)),
	}
	for i, call := range spec.Calls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := e.executeCall(ctx, i, call)
		report.Calls = append(report.Calls, res)
		if err != nil {
			return report, err
		}
	}
	e.counters.executions++

	if err := e.persistCalls(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) executeCall(ctx context.Context, index int, call ir.CallSpec) (CallResult, error) {
	key := call.Key()
	res := CallResult{Key: key}

	inst, ok := e.reg.Lookup(call.Instance)
	if !ok {
		res.Err = &CallError{Index: index, Key: key, Err: NewUnknownInstanceError(key)}
		e.counters.record(key, res.Err)
		slog.Warn("call to unregistered instance", "call", key.String(), "index", index)
		return res, nil
	}
	if _, ok := inst.Spec.Function(call.Function); !ok {
		res.Err = &CallError{Index: index, Key: key, Err: NewUnknownFunctionError(key, inst.Spec.TypeName)}
		e.counters.record(key, res.Err)
		slog.Warn("call to undeclared function", "call", key.String(), "index", index)
		return res, nil
	}

	results, err := e.invoker.Invoke(ctx, call, inst.Handle)
	e.reg.Touch(key)
	if err != nil {
		res.Err = &CallError{Index: index, Key: key, Err: NewInvokeError(key, err)}
		e.counters.record(key, res.Err)
		slog.Warn("call failed", "call", key.String(), "index", index, "error", err)
		return res, nil
	}
	res.Results = results
	e.counters.record(key, nil)
	slog.Debug("call completed", "call", key.String(), "index", index, "results", len(results))

	discovered, err := e.discover(ctx, results)
	res.Discovered = discovered
	return res, err
}

// Step is one driver iteration: GenerateOrMutate, Execute, then add the
// executed sequence to the stored corpus. The Report's Buffer is the input
// for the next Step.
func (e *Engine) Step(ctx context.Context, buf []byte) (*Report, error) {
	spec, mode, err := e.GenerateOrMutate(buf)
	if err != nil {
		return nil, err
	}
	report, err := e.Execute(ctx, spec)
	if report != nil {
		report.Mode = mode
	}
	if err != nil {
		return report, err
	}
	if err := e.persistExecution(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// Replay executes a stored buffer unchanged. Calls to instances the engine
// has not discovered yet fail like any other unresolved call.
func (e *Engine) Replay(ctx context.Context, buf []byte) (*Report, error) {
	spec, ok := ir.Deserialize(buf)
	if !ok {
		return nil, ErrInvalidBuffer
	}
	report, err := e.Execute(ctx, spec)
	if report != nil {
		report.Mode = ModeReplay
	}
	return report, err
}

func (e *Engine) persistExecution(ctx context.Context, report *Report) error {
	if e.store == nil {
		return nil
	}
	fresh, err := e.store.WriteExecution(ctx, store.Execution{
		ID:       report.ID,
		RunID:    e.runID,
		Seq:      report.Seq,
		Mode:     report.Mode.String(),
		Buffer:   report.Buffer,
		Calls:    len(report.Calls),
		Failures: report.Failures(),
	})
	if err != nil {
		slog.Error("store execution", "id", report.ID, "error", err)
		return err
	}
	if !fresh {
		slog.Debug("execution already in corpus", "id", report.ID)
	}
	return nil
}

func (e *Engine) persistCalls(ctx context.Context, report *Report) error {
	if e.store == nil {
		return nil
	}
	deltas := make(map[ir.CallKey]*store.CallStat)
	var order []ir.CallKey
	for _, c := range report.Calls {
		d, ok := deltas[c.Key]
		if !ok {
			d = &store.CallStat{Key: c.Key}
			deltas[c.Key] = d
			order = append(order, c.Key)
		}
		d.Calls++
		if c.Err != nil {
			d.Failures++
		}
	}
	for _, key := range order {
		if err := e.store.AddCallStats(ctx, e.runID, *deltas[key]); err != nil {
			slog.Error("store call stats", "call", key.String(), "error", err)
			return err
		}
	}
	return nil
}
