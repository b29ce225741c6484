package mutator

import (
	"errors"
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/registry"
)

// ErrNoCallable is returned when no registered instance declares a function.
var ErrNoCallable = errors.New("no registered instance has callable functions")

// SequenceOp names the edit MutateSequence applied.
type SequenceOp int

const (
	OpMutateArg SequenceOp = iota
	OpReplaceCall
	OpFreshSequence
	OpUnchanged
)

func (o SequenceOp) String() string {
	switch o {
	case OpMutateArg:
		return "mutate_arg"
	case OpReplaceCall:
		return "replace_call"
	case OpFreshSequence:
		return "fresh_sequence"
	case OpUnchanged:
		return "unchanged"
	}
	return fmt.Sprintf("SequenceOp(%d)", int(o))
}

// GenerateCall picks a uniform registered instance, then a uniform function
// of it, and generates every argument. Instances whose interface declares no
// functions are never picked.
func (m *Mutator) GenerateCall(reg *registry.Registry) (ir.CallSpec, error) {
	var callable []registry.Instance
	for _, inst := range reg.Instances() {
		if inst.Spec != nil && len(inst.Spec.Functions) > 0 {
			callable = append(callable, inst)
		}
	}
	if len(callable) == 0 {
		return ir.CallSpec{}, ErrNoCallable
	}

	inst := callable[m.rng.IntN(len(callable))]
	fn := inst.Spec.Functions[m.rng.IntN(len(inst.Spec.Functions))]

	args := make([]ir.Value, len(fn.Args))
	for i, a := range fn.Args {
		v, err := m.Generate(a)
		if err != nil {
			return ir.CallSpec{}, fmt.Errorf("%s.%s arg %d: %w", inst.Name, fn.Name, i, err)
		}
		args[i] = v
	}
	return ir.CallSpec{Instance: inst.Name, Function: fn.Name, Args: args}, nil
}

// GenerateSequence builds an execution of length independently generated calls.
func (m *Mutator) GenerateSequence(reg *registry.Registry, length int) (ir.ExecutionSpec, error) {
	calls := make([]ir.CallSpec, length)
	for i := range calls {
		c, err := m.GenerateCall(reg)
		if err != nil {
			return ir.ExecutionSpec{}, err
		}
		calls[i] = c
	}
	return ir.ExecutionSpec{Calls: calls}, nil
}

// MutateSequence edits spec in place. With FunctionMutateOdds.For odds it
// mutates one argument of one uniformly chosen call; otherwise it replaces
// one uniformly chosen call slot with a freshly generated call. The sequence
// length is preserved, except that an empty sequence becomes a fresh
// one-call sequence.
//
// Argument mutation needs the call's signature, so the call's instance must
// be registered and declare the function. Callers vet decoded sequences
// before handing them here.
func (m *Mutator) MutateSequence(reg *registry.Registry, spec *ir.ExecutionSpec) (SequenceOp, error) {
	if len(spec.Calls) == 0 {
		c, err := m.GenerateCall(reg)
		if err != nil {
			return OpFreshSequence, err
		}
		spec.Calls = []ir.CallSpec{c}
		return OpFreshSequence, nil
	}

	if !m.cfg.FunctionMutateOdds.Hit(m.rng) {
		i := m.rng.IntN(len(spec.Calls))
		c, err := m.GenerateCall(reg)
		if err != nil {
			return OpReplaceCall, err
		}
		spec.Calls[i] = c
		return OpReplaceCall, nil
	}

	i := m.rng.IntN(len(spec.Calls))
	call := spec.Calls[i]
	if len(call.Args) == 0 {
		return OpUnchanged, nil
	}
	sig, err := signature(reg, call)
	if err != nil {
		return OpMutateArg, err
	}
	if len(sig.Args) != len(call.Args) {
		return OpMutateArg, &ir.InvariantError{
			Code:     ir.ErrCodeShapeMismatch,
			Message:  fmt.Sprintf("%s takes %d args, call has %d", call.Key(), len(sig.Args), len(call.Args)),
			TypeName: call.Instance,
		}
	}

	j := m.rng.IntN(len(call.Args))
	v, err := m.Mutate(call.Args[j], sig.Args[j])
	if err != nil {
		return OpMutateArg, fmt.Errorf("%s arg %d: %w", call.Key(), j, err)
	}
	next := call.Clone()
	next.Args[j] = v
	spec.Calls[i] = next
	return OpMutateArg, nil
}

func signature(reg *registry.Registry, call ir.CallSpec) (*ir.FunctionSignature, error) {
	inst, ok := reg.Lookup(call.Instance)
	if !ok || inst.Spec == nil {
		return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: "call to unregistered instance", TypeName: call.Instance}
	}
	sig, ok := inst.Spec.Function(call.Function)
	if !ok {
		return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: fmt.Sprintf("function %q not declared", call.Function), TypeName: inst.Spec.TypeName}
	}
	return sig, nil
}

// Vet checks that a decoded sequence only names registered instances and
// declared functions, and that every argument conforms to its signature.
func Vet(reg *registry.Registry, types *ir.TypeRegistry, spec ir.ExecutionSpec) error {
	for i, call := range spec.Calls {
		sig, err := signature(reg, call)
		if err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
		if len(sig.Args) != len(call.Args) {
			return fmt.Errorf("call %d: %w: %s takes %d args", i, ir.ErrNonConforming, call.Key(), len(sig.Args))
		}
		for j, a := range call.Args {
			if err := types.Conforms(a, sig.Args[j]); err != nil {
				return fmt.Errorf("call %d arg %d: %w", i, j, err)
			}
		}
	}
	return nil
}
