package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/registry"
	"github.com/roach88/ifuzz/internal/store"
)

// discover registers every new interface reference found in results.
//
// References nested inside vectors, arrays, structs and unions count. A
// reference whose short name is already registered is ignored. A reference
// to an interface type with no loaded spec, or one the invoker cannot bind,
// is skipped with a warning.
func (e *Engine) discover(ctx context.Context, results []ir.Value) ([]string, error) {
	var refs []ir.OpaqueValue
	for _, v := range results {
		refs = liveReferences(v, refs)
	}

	var found []string
	for _, ref := range refs {
		name := registry.ShortName(ref.TypeName)
		if e.reg.State(name) != registry.StateUnregistered {
			continue
		}
		spec, ok := e.reg.InterfaceSpec(ref.TypeName)
		if !ok {
			slog.Warn("skipping unknown interface", "type", ref.TypeName)
			continue
		}
		handle, err := e.invoker.InstantiateFromHandle(ctx, spec.TypeName, ref.Handle)
		if err != nil {
			slog.Warn("cannot bind discovered interface", "type", spec.TypeName, "handle", uint64(ref.Handle), "error", err)
			continue
		}
		if err := e.register(ctx, name, spec, handle); err != nil {
			return found, err
		}
		found = append(found, name)
	}
	return found, nil
}

// register adds an untouched instance and records it in the store.
func (e *Engine) register(ctx context.Context, name string, spec *ir.InterfaceSpec, handle ir.Handle) error {
	if !e.reg.Register(name, spec, handle) {
		return nil
	}
	seq := e.clock.Next()
	slog.Info("registered instance", "name", name, "type", spec.TypeName, "handle", uint64(handle), "seq", seq)

	if e.store == nil {
		return nil
	}
	err := e.store.WriteInstance(ctx, e.runID, store.Instance{
		Name:     name,
		TypeName: spec.TypeName,
		Handle:   handle,
		Seq:      seq,
	})
	if err != nil {
		slog.Error("store instance", "name", name, "error", err)
		return err
	}
	return nil
}

// liveReferences appends every non-placeholder interface or callback
// reference in v to out, depth first.
func liveReferences(v ir.Value, out []ir.OpaqueValue) []ir.OpaqueValue {
	if ref, ok := ir.IsLiveReference(v); ok {
		return append(out, ref)
	}
	switch val := v.(type) {
	case ir.VectorValue:
		for _, el := range val.Elems {
			out = liveReferences(el, out)
		}
	case ir.ArrayValue:
		for _, el := range val.Elems {
			out = liveReferences(el, out)
		}
	case ir.StructValue:
		for _, f := range val.Fields {
			out = liveReferences(f.Value, out)
		}
	case ir.UnionValue:
		out = liveReferences(val.Selected.Value, out)
	}
	return out
}
