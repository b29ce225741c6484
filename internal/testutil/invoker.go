package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ifuzz/internal/ir"
)

// Responder computes the results of one scripted call.
type Responder func(call ir.CallSpec) ([]ir.Value, error)

// Invocation is one recorded Invoke.
type Invocation struct {
	Call   ir.CallSpec
	Handle ir.Handle
}

// Binding is one recorded InstantiateFromHandle.
type Binding struct {
	TypeName string
	Handle   ir.Handle
}

// FakeInvoker is a scriptable engine.Invoker. Unscripted calls succeed with
// no results. Bound instances receive handles 1000, 1001, ... in order.
type FakeInvoker struct {
	mu         sync.Mutex
	responders map[ir.CallKey]Responder
	bindErrs   map[string]error
	next       ir.Handle

	Invocations []Invocation
	Bindings    []Binding
}

// NewFakeInvoker creates an invoker with nothing scripted.
func NewFakeInvoker() *FakeInvoker {
	return &FakeInvoker{
		responders: make(map[ir.CallKey]Responder),
		bindErrs:   make(map[string]error),
		next:       1000,
	}
}

// On scripts the results of instance.function.
func (f *FakeInvoker) On(instance, function string, r Responder) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[ir.CallKey{Instance: instance, Function: function}] = r
	return f
}

// Returning scripts instance.function to return fixed values.
func (f *FakeInvoker) Returning(instance, function string, values ...ir.Value) *FakeInvoker {
	return f.On(instance, function, func(ir.CallSpec) ([]ir.Value, error) {
		return values, nil
	})
}

// Failing scripts instance.function to fail with err.
func (f *FakeInvoker) Failing(instance, function string, err error) *FakeInvoker {
	return f.On(instance, function, func(ir.CallSpec) ([]ir.Value, error) {
		return nil, err
	})
}

// FailBinding makes InstantiateFromHandle fail for typeName.
func (f *FakeInvoker) FailBinding(typeName string, err error) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindErrs[typeName] = err
	return f
}

// Invoke records the call and runs its responder.
func (f *FakeInvoker) Invoke(ctx context.Context, call ir.CallSpec, handle ir.Handle) ([]ir.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.Invocations = append(f.Invocations, Invocation{Call: call.Clone(), Handle: handle})
	r := f.responders[call.Key()]
	f.mu.Unlock()

	if r == nil {
		return nil, nil
	}
	return r(call)
}

// InstantiateFromHandle records the binding and returns a fresh handle.
func (f *FakeInvoker) InstantiateFromHandle(ctx context.Context, typeName string, handle ir.Handle) (ir.Handle, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Bindings = append(f.Bindings, Binding{TypeName: typeName, Handle: handle})
	if err, ok := f.bindErrs[typeName]; ok {
		return 0, fmt.Errorf("bind %s: %w", typeName, err)
	}
	h := f.next
	f.next++
	return h, nil
}

// CallCount returns how many times instance.function was invoked.
func (f *FakeInvoker) CallCount(instance, function string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, inv := range f.Invocations {
		if inv.Call.Instance == instance && inv.Call.Function == function {
			n++
		}
	}
	return n
}
