// Package loopback provides an in-process engine.Invoker that answers every
// call from the schema alone. Results are generated from each function's
// declared return types, and returned interfaces come back as fresh live
// handles, so a run explores the whole reachable interface graph without a
// system under test.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/mutator"
	"github.com/roach88/ifuzz/internal/registry"
)

var (
	// ErrUnknownHandle is returned for a handle this invoker never minted.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrInjected is the failure returned by WithFailureOdds.
	ErrInjected = errors.New("injected failure")
)

// Option configures an Invoker.
type Option func(*Invoker)

// WithFailureOdds makes Invoke fail with ErrInjected at the given odds.
func WithFailureOdds(o mutator.Odds) Option {
	return func(l *Invoker) {
		l.failure = o
	}
}

// WithFirstHandle sets the first handle minted. Default: 1.
func WithFirstHandle(h ir.Handle) Option {
	return func(l *Invoker) {
		l.next = h
	}
}

// Invoker is safe for concurrent use.
type Invoker struct {
	mu      sync.Mutex
	specs   map[string]*ir.InterfaceSpec
	gen     *mutator.Mutator
	rng     *rand.Rand
	failure mutator.Odds

	next ir.Handle

	// minted maps every handle handed out to the interface type it refers to.
	minted map[ir.Handle]string

	// bound holds handles returned by InstantiateFromHandle.
	bound map[ir.Handle]string

	calls uint64
}

// New builds an invoker over the given interfaces. cfg controls the shape
// of generated results.
func New(specs []ir.InterfaceSpec, cfg mutator.Config, rng *rand.Rand, opts ...Option) *Invoker {
	l := &Invoker{
		specs:   make(map[string]*ir.InterfaceSpec, len(specs)),
		rng:     rng,
		failure: mutator.Odds{For: 0, Against: 1},
		next:    1,
		minted:  make(map[ir.Handle]string),
		bound:   make(map[ir.Handle]string),
	}
	for i := range specs {
		spec := specs[i]
		l.specs[registry.ShortName(spec.TypeName)] = &spec
	}
	l.gen = mutator.New(cfg, ir.NewTypeRegistry(specs), rng)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InstantiateFromHandle binds handle to a callable instance. Handle 0 binds
// the root service of any loaded interface; any other handle must have
// been returned by an earlier call as a reference to typeName.
func (l *Invoker) InstantiateFromHandle(ctx context.Context, typeName string, handle ir.Handle) (ir.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	spec, ok := l.specs[registry.ShortName(typeName)]
	if !ok {
		return 0, fmt.Errorf("bind %s: interface not loaded", typeName)
	}
	if handle != 0 {
		minted, ok := l.minted[handle]
		if !ok {
			return 0, fmt.Errorf("bind %s: %w %d", typeName, ErrUnknownHandle, uint64(handle))
		}
		if registry.ShortName(minted) != registry.ShortName(typeName) {
			return 0, fmt.Errorf("bind %s: handle %d refers to %s", typeName, uint64(handle), minted)
		}
	}

	h := l.mint(spec.TypeName)
	l.bound[h] = spec.TypeName
	return h, nil
}

// Invoke checks the arguments against the function's signature and
// returns generated results.
func (l *Invoker) Invoke(ctx context.Context, call ir.CallSpec, handle ir.Handle) ([]ir.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	typeName, ok := l.bound[handle]
	if !ok {
		return nil, fmt.Errorf("%s: %w %d", call.Key(), ErrUnknownHandle, uint64(handle))
	}
	spec := l.specs[registry.ShortName(typeName)]
	fn, ok := spec.Function(call.Function)
	if !ok {
		return nil, fmt.Errorf("%s: %s declares no function %q", call.Key(), typeName, call.Function)
	}
	if len(call.Args) != len(fn.Args) {
		return nil, fmt.Errorf("%s: %d args, want %d", call.Key(), len(call.Args), len(fn.Args))
	}
	types := l.gen.Types()
	for i, arg := range call.Args {
		if err := types.Conforms(arg, fn.Args[i]); err != nil {
			return nil, fmt.Errorf("%s: arg %d: %w", call.Key(), i, err)
		}
	}

	l.calls++
	if l.failure.Hit(l.rng) {
		slog.Debug("loopback call failed", "call", call.Key().String(), "handle", uint64(handle))
		return nil, fmt.Errorf("%s: %w", call.Key(), ErrInjected)
	}

	results := make([]ir.Value, 0, len(fn.Returns))
	for _, t := range fn.Returns {
		v, err := l.gen.Generate(t)
		if err != nil {
			return nil, err
		}
		results = append(results, l.materialize(v))
	}
	slog.Debug("loopback call", "call", call.Key().String(), "handle", uint64(handle), "results", len(results))
	return results, nil
}

// Calls returns how many calls passed argument checks.
func (l *Invoker) Calls() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *Invoker) mint(typeName string) ir.Handle {
	h := l.next
	l.next++
	l.minted[h] = typeName
	return h
}

// materialize replaces interface placeholders with live references to
// loaded interfaces. Placeholders for interfaces that are not loaded stay.
func (l *Invoker) materialize(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.OpaqueValue:
		if !val.Placeholder || val.Kind != ir.TagInterface {
			return val
		}
		spec, ok := l.specs[registry.ShortName(val.TypeName)]
		if !ok {
			return val
		}
		return ir.OpaqueValue{Kind: ir.TagInterface, TypeName: spec.TypeName, Handle: l.mint(spec.TypeName)}
	case ir.VectorValue:
		for i, e := range val.Elems {
			val.Elems[i] = l.materialize(e)
		}
		return val
	case ir.ArrayValue:
		for i, e := range val.Elems {
			val.Elems[i] = l.materialize(e)
		}
		return val
	case ir.StructValue:
		for i, f := range val.Fields {
			val.Fields[i].Value = l.materialize(f.Value)
		}
		return val
	case ir.UnionValue:
		val.Selected.Value = l.materialize(val.Selected.Value)
		return val
	}
	return v
}
