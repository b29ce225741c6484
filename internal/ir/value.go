package ir

import (
	"bytes"
	"math"
)

// Value is a sealed interface over concrete values conforming to a TypeSpec.
// Only the variants declared in this file implement it.
type Value interface {
	Tag() TypeTag
	value() // Sealed
}

// Handle is an opaque 64-bit reference to a live object owned by the invoker.
type Handle uint64

// VoidValue is the value of a Void type.
type VoidValue struct{}

func (VoidValue) Tag() TypeTag { return TagVoid }
func (VoidValue) value()       {}

// ScalarValue holds raw bits truncated to the width of Kind.
type ScalarValue struct {
	Kind ScalarKind
	Bits uint64
}

func (ScalarValue) Tag() TypeTag { return TagScalar }
func (ScalarValue) value()       {}

// NewScalar truncates bits to the kind's width.
func NewScalar(kind ScalarKind, bits uint64) ScalarValue {
	return ScalarValue{Kind: kind, Bits: bits & kind.Mask()}
}

// Int returns the value sign-extended for signed kinds.
func (v ScalarValue) Int() int64 {
	w := v.Kind.Width()
	if v.Kind.IsSigned() && w < 64 {
		shift := 64 - w
		return int64(v.Bits<<shift) >> shift
	}
	return int64(v.Bits)
}

// Float returns the IEEE-754 interpretation for f32/f64 kinds.
func (v ScalarValue) Float() float64 {
	if v.Kind == KindF32 {
		return float64(math.Float32frombits(uint32(v.Bits)))
	}
	return math.Float64frombits(v.Bits)
}

// StringValue is a byte buffer; its length is len(Bytes).
type StringValue struct {
	Bytes []byte
}

func (StringValue) Tag() TypeTag { return TagString }
func (StringValue) value()       {}

// Len returns the stored length.
func (v StringValue) Len() int { return len(v.Bytes) }

// EnumValue is an enum or mask value. Bits need not be a declared enumerator.
type EnumValue struct {
	Mask bool
	Kind ScalarKind
	Bits uint64
}

func (v EnumValue) Tag() TypeTag {
	if v.Mask {
		return TagMask
	}
	return TagEnum
}
func (EnumValue) value() {}

// VectorValue is a variable-length sequence.
type VectorValue struct {
	Elems []Value
}

func (VectorValue) Tag() TypeTag { return TagVector }
func (VectorValue) value()       {}

// ArrayValue is a fixed-length sequence.
type ArrayValue struct {
	Elems []Value
}

func (ArrayValue) Tag() TypeTag { return TagArray }
func (ArrayValue) value()       {}

// NamedValue pairs a field or alternative name with its value.
type NamedValue struct {
	Name  string
	Value Value
}

// StructValue holds one value per field, in declaration order.
type StructValue struct {
	Fields []NamedValue
}

func (StructValue) Tag() TypeTag { return TagStruct }
func (StructValue) value()       {}

// Field returns the named field's value.
func (v StructValue) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// UnionValue holds exactly one populated alternative.
type UnionValue struct {
	Selected NamedValue
}

func (UnionValue) Tag() TypeTag { return TagUnion }
func (UnionValue) value()       {}

// OpaqueValue stands in for references the engine does not fabricate:
// callbacks, interfaces, memory, pointers, handles, and message queues.
// A Placeholder value has no live Handle; the invoker builds the real
// argument at call time.
type OpaqueValue struct {
	Kind        TypeTag
	TypeName    string
	Handle      Handle
	Placeholder bool
}

func (v OpaqueValue) Tag() TypeTag { return v.Kind }
func (OpaqueValue) value()         {}

// Placeholder returns the unsynthesized value for an opaque tag.
func Placeholder(tag TypeTag, typeName string) OpaqueValue {
	return OpaqueValue{Kind: tag, TypeName: typeName, Placeholder: true}
}

// IsLiveReference reports whether v is an interface or callback reference
// carrying a real handle.
func IsLiveReference(v Value) (OpaqueValue, bool) {
	o, ok := v.(OpaqueValue)
	if !ok || o.Placeholder {
		return OpaqueValue{}, false
	}
	if o.Kind != TagInterface && o.Kind != TagCallback {
		return OpaqueValue{}, false
	}
	return o, true
}

// Equal reports whether two values are structurally identical.
// Nil and empty collections compare equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case VoidValue:
		_, ok := b.(VoidValue)
		return ok
	case ScalarValue:
		bv, ok := b.(ScalarValue)
		return ok && av == bv
	case StringValue:
		bv, ok := b.(StringValue)
		return ok && bytes.Equal(av.Bytes, bv.Bytes)
	case EnumValue:
		bv, ok := b.(EnumValue)
		return ok && av == bv
	case VectorValue:
		bv, ok := b.(VectorValue)
		return ok && equalElems(av.Elems, bv.Elems)
	case ArrayValue:
		bv, ok := b.(ArrayValue)
		return ok && equalElems(av.Elems, bv.Elems)
	case StructValue:
		bv, ok := b.(StructValue)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Name != bv.Fields[i].Name || !Equal(av.Fields[i].Value, bv.Fields[i].Value) {
				return false
			}
		}
		return true
	case UnionValue:
		bv, ok := b.(UnionValue)
		return ok && av.Selected.Name == bv.Selected.Name && Equal(av.Selected.Value, bv.Selected.Value)
	case OpaqueValue:
		bv, ok := b.(OpaqueValue)
		return ok && av == bv
	}
	return false
}

func equalElems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of v that shares no slices with it.
func Clone(v Value) Value {
	switch val := v.(type) {
	case StringValue:
		return StringValue{Bytes: append([]byte{}, val.Bytes...)}
	case VectorValue:
		return VectorValue{Elems: cloneElems(val.Elems)}
	case ArrayValue:
		return ArrayValue{Elems: cloneElems(val.Elems)}
	case StructValue:
		fields := make([]NamedValue, len(val.Fields))
		for i, f := range val.Fields {
			fields[i] = NamedValue{Name: f.Name, Value: Clone(f.Value)}
		}
		return StructValue{Fields: fields}
	case UnionValue:
		return UnionValue{Selected: NamedValue{Name: val.Selected.Name, Value: Clone(val.Selected.Value)}}
	default:
		// Remaining variants are plain values.
		return v
	}
}

func cloneElems(elems []Value) []Value {
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = Clone(e)
	}
	return out
}
