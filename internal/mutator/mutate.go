package mutator

import (
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
)

// FlipBit toggles bit i of x. FlipBit(FlipBit(x, i), i) == x.
func FlipBit(x uint64, i uint) uint64 {
	return x ^ (uint64(1) << i)
}

// Mutate returns a copy of v with one minimal change applied. t is the
// schema v was generated from; it supplies enumerators, union alternatives
// and element types.
//
// Container mutation is local: exactly one immediate child (vector or array
// element, struct field, populated union alternative) is mutated and every
// sibling is preserved. Lengths never change. Opaque values are returned
// unchanged. The result never aliases the input.
func (m *Mutator) Mutate(v ir.Value, t ir.TypeSpec) (ir.Value, error) {
	if v == nil {
		return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: "nil value", TypeName: t.Name}
	}
	if v.Tag() != t.Tag {
		return nil, &ir.InvariantError{
			Code:     ir.ErrCodeShapeMismatch,
			Message:  fmt.Sprintf("%s value for %s schema", v.Tag(), t.Tag),
			TypeName: t.Name,
		}
	}

	switch val := v.(type) {
	case ir.ScalarValue:
		return m.mutateScalar(val), nil

	case ir.EnumValue:
		return m.generateEnum(t)

	case ir.StringValue:
		return ir.StringValue{Bytes: m.mutateString(val.Bytes)}, nil

	case ir.VectorValue:
		elems, err := m.mutateElems(val.Elems, t)
		if err != nil {
			return nil, err
		}
		return ir.VectorValue{Elems: elems}, nil

	case ir.ArrayValue:
		elems, err := m.mutateElems(val.Elems, t)
		if err != nil {
			return nil, err
		}
		return ir.ArrayValue{Elems: elems}, nil

	case ir.StructValue:
		return m.mutateStruct(val, t)

	case ir.UnionValue:
		return m.mutateUnion(val, t)

	case ir.OpaqueValue:
		return val, nil
	}
	return nil, ir.NewUnknownTagError(v.Tag(), t.Name)
}

// mutateScalar flips one bit within the kind's width. Floats flip a bit of
// their IEEE-754 pattern, so NaN and infinities are reachable. Bools are
// regenerated.
func (m *Mutator) mutateScalar(v ir.ScalarValue) ir.ScalarValue {
	if v.Kind == ir.KindBool {
		return m.generateScalar(v.Kind)
	}
	i := uint(m.rng.UintN(v.Kind.Width()))
	return ir.NewScalar(v.Kind, FlipBit(v.Bits, i))
}

const (
	stringInsert = iota
	stringDelete
	stringReplace
)

// mutateString applies one of insert, delete or replace at a uniform
// position. An empty string can only grow.
func (m *Mutator) mutateString(b []byte) []byte {
	op := stringInsert
	if len(b) > 0 {
		op = m.rng.IntN(3)
	}
	switch op {
	case stringDelete:
		i := m.rng.IntN(len(b))
		out := make([]byte, 0, len(b)-1)
		out = append(out, b[:i]...)
		return append(out, b[i+1:]...)
	case stringReplace:
		out := append([]byte(nil), b...)
		out[m.rng.IntN(len(out))] = m.randomChar()
		return out
	default:
		i := m.rng.IntN(len(b) + 1)
		out := make([]byte, 0, len(b)+1)
		out = append(out, b[:i]...)
		out = append(out, m.randomChar())
		return append(out, b[i:]...)
	}
}

func (m *Mutator) mutateElems(elems []ir.Value, t ir.TypeSpec) ([]ir.Value, error) {
	out := cloneAll(elems)
	if len(out) == 0 {
		return out, nil
	}
	if t.Elem == nil {
		return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: t.Tag.String() + " without element type", TypeName: t.Name}
	}
	i := m.rng.IntN(len(out))
	e, err := m.Mutate(out[i], *t.Elem)
	if err != nil {
		return nil, err
	}
	out[i] = e
	return out, nil
}

func (m *Mutator) mutateStruct(v ir.StructValue, t ir.TypeSpec) (ir.Value, error) {
	out := ir.Clone(v).(ir.StructValue)
	if len(out.Fields) == 0 {
		return out, nil
	}
	fields, err := m.types.Fields(t)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(out.Fields) {
		return nil, &ir.InvariantError{
			Code:     ir.ErrCodeShapeMismatch,
			Message:  fmt.Sprintf("struct value has %d fields, schema declares %d", len(out.Fields), len(fields)),
			TypeName: t.PredefinedTypeName,
		}
	}
	i := m.rng.IntN(len(out.Fields))
	f, err := m.Mutate(out.Fields[i].Value, fields[i])
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", fields[i].Name, err)
	}
	out.Fields[i].Value = f
	return out, nil
}

// mutateUnion mutates the populated alternative in place. The selection
// never changes.
func (m *Mutator) mutateUnion(v ir.UnionValue, t ir.TypeSpec) (ir.Value, error) {
	fields, err := m.types.Fields(t)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.Name != v.Selected.Name {
			continue
		}
		sel, err := m.Mutate(v.Selected.Value, f)
		if err != nil {
			return nil, fmt.Errorf("alternative %s: %w", f.Name, err)
		}
		return ir.UnionValue{Selected: ir.NamedValue{Name: f.Name, Value: sel}}, nil
	}
	return nil, &ir.InvariantError{
		Code:     ir.ErrCodeShapeMismatch,
		Message:  fmt.Sprintf("union alternative %q not declared", v.Selected.Name),
		TypeName: t.PredefinedTypeName,
	}
}

func cloneAll(elems []ir.Value) []ir.Value {
	if elems == nil {
		return nil
	}
	out := make([]ir.Value, len(elems))
	for i, e := range elems {
		out[i] = ir.Clone(e)
	}
	return out
}
