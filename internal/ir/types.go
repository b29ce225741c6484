package ir

import "fmt"

// TypeTag identifies the variant of a TypeSpec or Value.
type TypeTag int

const (
	TagVoid TypeTag = iota
	TagScalar
	TagString
	TagEnum
	TagMask
	TagVector
	TagArray
	TagStruct
	TagUnion
	TagCallback
	TagInterface
	TagMemory
	TagPointer
	TagHandle
	TagFmqSync
	TagFmqUnsync
)

var tagNames = [...]string{
	TagVoid:      "void",
	TagScalar:    "scalar",
	TagString:    "string",
	TagEnum:      "enum",
	TagMask:      "mask",
	TagVector:    "vector",
	TagArray:     "array",
	TagStruct:    "struct",
	TagUnion:     "union",
	TagCallback:  "callback",
	TagInterface: "interface",
	TagMemory:    "memory",
	TagPointer:   "pointer",
	TagHandle:    "handle",
	TagFmqSync:   "fmq_sync",
	TagFmqUnsync: "fmq_unsync",
}

func (t TypeTag) String() string {
	if t >= 0 && int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// ParseTypeTag is the inverse of TypeTag.String.
func ParseTypeTag(s string) (TypeTag, bool) {
	for i, name := range tagNames {
		if name == s {
			return TypeTag(i), true
		}
	}
	return 0, false
}

// IsOpaque reports whether values of this tag are references the engine
// never synthesizes (callbacks, interfaces, memory, pointers, handles, queues).
func (t TypeTag) IsOpaque() bool {
	switch t {
	case TagCallback, TagInterface, TagMemory, TagPointer, TagHandle, TagFmqSync, TagFmqUnsync:
		return true
	}
	return false
}

// ScalarKind is the machine type of a scalar, enum backing, or mask.
type ScalarKind int

const (
	KindBool ScalarKind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
)

var kindNames = [...]string{
	KindBool: "bool",
	KindI8:   "i8",
	KindU8:   "u8",
	KindI16:  "i16",
	KindU16:  "u16",
	KindI32:  "i32",
	KindU32:  "u32",
	KindI64:  "i64",
	KindU64:  "u64",
	KindF32:  "f32",
	KindF64:  "f64",
}

func (k ScalarKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseScalarKind accepts the short names used by String plus the common
// C-style aliases found in interface definitions.
func ParseScalarKind(s string) (ScalarKind, bool) {
	for i, name := range kindNames {
		if name == s {
			return ScalarKind(i), true
		}
	}
	switch s {
	case "int8_t":
		return KindI8, true
	case "uint8_t":
		return KindU8, true
	case "int16_t":
		return KindI16, true
	case "uint16_t":
		return KindU16, true
	case "int32_t":
		return KindI32, true
	case "uint32_t":
		return KindU32, true
	case "int64_t":
		return KindI64, true
	case "uint64_t":
		return KindU64, true
	case "float_t", "float":
		return KindF32, true
	case "double_t", "double":
		return KindF64, true
	case "bool_t":
		return KindBool, true
	}
	return 0, false
}

// Width returns the kind's size in bits. Bool occupies a single bit.
func (k ScalarKind) Width() uint {
	switch k {
	case KindBool:
		return 1
	case KindI8, KindU8:
		return 8
	case KindI16, KindU16:
		return 16
	case KindI32, KindU32, KindF32:
		return 32
	default:
		return 64
	}
}

// IsFloat reports whether the kind is an IEEE-754 type.
func (k ScalarKind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// IsSigned reports whether the kind is a signed integer.
func (k ScalarKind) IsSigned() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64:
		return true
	}
	return false
}

// Mask returns the all-ones bit pattern for the kind's width.
func (k ScalarKind) Mask() uint64 {
	return WidthMask(k.Width())
}

// WidthMask returns a mask with the low width bits set.
func WidthMask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// Enumerator is one named value of an enum.
type Enumerator struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"` // raw bits, truncated to the backing kind
}

// TypeSpec is an immutable schema node. It describes the shape of a value
// without holding data.
//
// Struct, Union, and Enum carry either inline Fields/Enumerators or a
// PredefinedTypeName, never both. Callback and Interface use
// PredefinedTypeName to name the referenced interface type.
type TypeSpec struct {
	Tag  TypeTag `json:"tag"`
	Name string  `json:"name,omitempty"`

	// Kind is the scalar kind for Scalar, and the backing kind for Enum/Mask.
	Kind ScalarKind `json:"kind,omitempty"`

	PredefinedTypeName string `json:"predefined_type_name,omitempty"`

	// Elem is the element type for Vector, Array, and Fmq queues.
	Elem *TypeSpec `json:"elem,omitempty"`

	// Length is the fixed element count of an Array.
	Length int `json:"length,omitempty"`

	Fields      []TypeSpec   `json:"fields,omitempty"`
	Enumerators []Enumerator `json:"enumerators,omitempty"`

	// Nested holds declarations scoped inside a struct or union declaration.
	// They are registered alongside the declaring type.
	Nested []TypeSpec `json:"nested,omitempty"`
}

// Named returns a copy of t carrying the given field/parameter name.
func (t TypeSpec) Named(name string) TypeSpec {
	t.Name = name
	return t
}

// Validate checks the structural invariants of a single schema node and,
// recursively, of its children.
func (t TypeSpec) Validate() error {
	switch t.Tag {
	case TagStruct, TagUnion:
		if len(t.Fields) > 0 && t.PredefinedTypeName != "" {
			return newShapeError(t, "inline fields and predefined type name are mutually exclusive")
		}
		if len(t.Fields) == 0 && t.PredefinedTypeName == "" && t.Tag == TagUnion {
			return newShapeError(t, "union has no alternatives")
		}
		for _, f := range t.Fields {
			if err := f.Validate(); err != nil {
				return err
			}
		}
	case TagEnum, TagMask:
		if len(t.Enumerators) > 0 && t.PredefinedTypeName != "" {
			return newShapeError(t, "inline enumerators and predefined type name are mutually exclusive")
		}
		if len(t.Enumerators) == 0 && t.PredefinedTypeName == "" {
			return newShapeError(t, "enum has neither enumerators nor a predefined type name")
		}
	case TagArray:
		if t.Length <= 0 {
			return newShapeError(t, "array requires a positive fixed length")
		}
		if t.Elem == nil {
			return newShapeError(t, "array requires an element type")
		}
		return t.Elem.Validate()
	case TagVector:
		if t.Length != 0 {
			return newShapeError(t, "vector must not carry a fixed length")
		}
		if t.Elem == nil {
			return newShapeError(t, "vector requires an element type")
		}
		return t.Elem.Validate()
	case TagCallback, TagInterface:
		if t.PredefinedTypeName == "" {
			return newShapeError(t, "reference requires a predefined type name")
		}
	}
	for _, n := range t.Nested {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FunctionSignature describes one callable function of an interface.
type FunctionSignature struct {
	Name    string     `json:"name"`
	Args    []TypeSpec `json:"args"`
	Returns []TypeSpec `json:"returns"`
}

// InterfaceSpec describes an interface type: its functions and the type
// declarations it contributes to the predefined type registry.
type InterfaceSpec struct {
	TypeName    string              `json:"type_name"`
	Functions   []FunctionSignature `json:"functions"`
	NestedTypes []TypeSpec          `json:"nested_types,omitempty"`
}

// Function looks up a function by name.
func (s *InterfaceSpec) Function(name string) (*FunctionSignature, bool) {
	for i := range s.Functions {
		if s.Functions[i].Name == name {
			return &s.Functions[i], true
		}
	}
	return nil, false
}
