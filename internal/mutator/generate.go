package mutator

import (
	"math/rand/v2"

	"github.com/roach88/ifuzz/internal/ir"
)

// Printable is the alphabet generated and inserted string bytes are drawn from.
const Printable = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

// Mutator generates and mutates values. It is not safe for concurrent use:
// the random source is shared by every call.
type Mutator struct {
	cfg   Config
	types *ir.TypeRegistry
	rng   *rand.Rand
}

// New creates a Mutator. A nil ScalarBias is replaced with DefaultScalarBias.
func New(cfg Config, types *ir.TypeRegistry, rng *rand.Rand) *Mutator {
	if cfg.ScalarBias == nil {
		cfg.ScalarBias = DefaultScalarBias
	}
	return &Mutator{cfg: cfg, types: types, rng: rng}
}

// Config returns the active configuration.
func (m *Mutator) Config() Config {
	return m.cfg
}

// Types returns the predefined type registry used for resolution.
func (m *Mutator) Types() *ir.TypeRegistry {
	return m.types
}

// Generate produces a random value of type t.
//
// Opaque types (callbacks, interfaces, memory, pointers, handles, queues)
// yield placeholders: they have no context-free valid random value, and the
// invoker builds them at call time.
//
// A tag the engine cannot generate, or a reference the registry cannot
// resolve, is returned as an *ir.InvariantError.
func (m *Mutator) Generate(t ir.TypeSpec) (ir.Value, error) {
	switch t.Tag {
	case ir.TagScalar:
		return m.generateScalar(t.Kind), nil

	case ir.TagString:
		return ir.StringValue{Bytes: m.randomPrintable(m.cfg.DefaultStringSize)}, nil

	case ir.TagEnum, ir.TagMask:
		return m.generateEnum(t)

	case ir.TagVector:
		elems, err := m.generateElems(t, m.cfg.DefaultVectorSize)
		if err != nil {
			return nil, err
		}
		return ir.VectorValue{Elems: elems}, nil

	case ir.TagArray:
		elems, err := m.generateElems(t, t.Length)
		if err != nil {
			return nil, err
		}
		return ir.ArrayValue{Elems: elems}, nil

	case ir.TagStruct:
		fields, err := m.types.Fields(t)
		if err != nil {
			return nil, err
		}
		out := make([]ir.NamedValue, len(fields))
		for i, f := range fields {
			v, err := m.Generate(f)
			if err != nil {
				return nil, err
			}
			out[i] = ir.NamedValue{Name: f.Name, Value: v}
		}
		return ir.StructValue{Fields: out}, nil

	case ir.TagUnion:
		fields, err := m.types.Fields(t)
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: "union has no alternatives", TypeName: t.PredefinedTypeName}
		}
		alt := fields[m.rng.IntN(len(fields))]
		v, err := m.Generate(alt)
		if err != nil {
			return nil, err
		}
		return ir.UnionValue{Selected: ir.NamedValue{Name: alt.Name, Value: v}}, nil

	case ir.TagCallback, ir.TagInterface, ir.TagMemory, ir.TagPointer, ir.TagHandle, ir.TagFmqSync, ir.TagFmqUnsync:
		return ir.Placeholder(t.Tag, t.PredefinedTypeName), nil

	default:
		return nil, ir.NewUnknownTagError(t.Tag, t.Name)
	}
}

func (m *Mutator) generateScalar(kind ir.ScalarKind) ir.ScalarValue {
	if kind == ir.KindBool {
		return ir.NewScalar(kind, m.rng.Uint64N(2))
	}
	return ir.NewScalar(kind, m.cfg.ScalarBias(m.rng))
}

// generateEnum usually picks a declared enumerator. With EnumBias.For odds
// it instead draws an arbitrary backing-kind scalar, which lets
// out-of-range values reach the receiver's validation.
func (m *Mutator) generateEnum(t ir.TypeSpec) (ir.Value, error) {
	enums, kind, err := m.types.Enumerators(t)
	if err != nil {
		return nil, err
	}
	var bits uint64
	if m.cfg.EnumBias.Hit(m.rng) {
		bits = m.generateScalar(kind).Bits
	} else {
		bits = enums[m.rng.IntN(len(enums))].Value & kind.Mask()
	}
	return ir.EnumValue{Mask: t.Tag == ir.TagMask, Kind: kind, Bits: bits}, nil
}

func (m *Mutator) generateElems(t ir.TypeSpec, n int) ([]ir.Value, error) {
	if t.Elem == nil {
		return nil, &ir.InvariantError{Code: ir.ErrCodeShapeMismatch, Message: t.Tag.String() + " without element type", TypeName: t.Name}
	}
	elems := make([]ir.Value, n)
	for i := range elems {
		v, err := m.Generate(*t.Elem)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

func (m *Mutator) randomPrintable(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = m.randomChar()
	}
	return b
}

func (m *Mutator) randomChar() byte {
	return Printable[m.rng.IntN(len(Printable))]
}
