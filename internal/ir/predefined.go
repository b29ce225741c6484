package ir

import (
	"errors"
	"fmt"
	"sort"
)

// TypeRegistry maps predefined type names to their declarations.
//
// It is built once from every loaded InterfaceSpec and is read-only
// afterwards; nothing in the engine mutates it.
type TypeRegistry struct {
	types map[string]TypeSpec
}

// NewTypeRegistry walks the nested declarations of every interface
// (recursing into declarations nested inside structs and unions) and
// registers each named one. Each interface also registers itself as an
// Interface type under its TypeName.
//
// Later declarations of the same name replace earlier ones.
func NewTypeRegistry(specs []InterfaceSpec) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]TypeSpec)}
	for _, spec := range specs {
		r.types[spec.TypeName] = TypeSpec{
			Tag:                TagInterface,
			Name:               spec.TypeName,
			PredefinedTypeName: spec.TypeName,
		}
		for _, t := range spec.NestedTypes {
			r.register(t)
		}
	}
	return r
}

func (r *TypeRegistry) register(t TypeSpec) {
	if t.Name != "" {
		r.types[t.Name] = t
	}
	for _, n := range t.Nested {
		r.register(n)
	}
}

// Len returns the number of registered names.
func (r *TypeRegistry) Len() int {
	return len(r.types)
}

// Names returns every registered name in sorted order.
func (r *TypeRegistry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the declaration registered under name.
func (r *TypeRegistry) Lookup(name string) (TypeSpec, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Resolve is Lookup with a missing name reported as an *InvariantError.
func (r *TypeRegistry) Resolve(name string) (TypeSpec, error) {
	t, ok := r.types[name]
	if !ok {
		return TypeSpec{}, NewMissingTypeError(name)
	}
	return t, nil
}

// Fields returns the field (or alternative) list of a struct or union,
// resolving a predefined reference when the type has no inline fields.
func (r *TypeRegistry) Fields(t TypeSpec) ([]TypeSpec, error) {
	if t.PredefinedTypeName == "" {
		return t.Fields, nil
	}
	decl, err := r.Resolve(t.PredefinedTypeName)
	if err != nil {
		return nil, err
	}
	if decl.Tag != t.Tag {
		return nil, newShapeError(t, fmt.Sprintf("reference resolves to a %s declaration", decl.Tag))
	}
	return decl.Fields, nil
}

// maxReferenceHops bounds a chain of enum and mask references.
const maxReferenceHops = 8

// Enumerators returns the enumerator list and backing kind of an enum or
// mask, resolving a predefined reference when needed. A mask may reference
// an enum declaration, and a mask declaration may itself be a reference.
func (r *TypeRegistry) Enumerators(t TypeSpec) ([]Enumerator, ScalarKind, error) {
	enums, kind, name := t.Enumerators, t.Kind, t.Name
	for ref, hops := t.PredefinedTypeName, 0; ref != ""; hops++ {
		if hops == maxReferenceHops {
			return nil, 0, newShapeError(t, "reference chain too long")
		}
		decl, err := r.Resolve(ref)
		if err != nil {
			return nil, 0, err
		}
		if decl.Tag != TagEnum && decl.Tag != TagMask {
			return nil, 0, newShapeError(t, fmt.Sprintf("reference resolves to a %s declaration", decl.Tag))
		}
		enums, kind, name = decl.Enumerators, decl.Kind, ref
		ref = decl.PredefinedTypeName
	}
	if len(enums) == 0 {
		return nil, 0, NewEmptyEnumError(name)
	}
	return enums, kind, nil
}

// ErrNonConforming marks a value that does not match its schema.
var ErrNonConforming = errors.New("value does not conform to schema")

// Conforms checks that v has the shape described by t. It is used to vet
// values decoded from untrusted buffers before they reach the mutator.
//
// Mismatches are reported as ErrNonConforming. Registry failures (missing
// declarations) are reported as *InvariantError.
func (r *TypeRegistry) Conforms(v Value, t TypeSpec) error {
	if v == nil || v.Tag() != t.Tag {
		return fmt.Errorf("%w: %s expected", ErrNonConforming, t.Tag)
	}
	switch val := v.(type) {
	case VoidValue, StringValue:
		return nil
	case ScalarValue:
		if val.Kind != t.Kind || val.Bits&^val.Kind.Mask() != 0 {
			return fmt.Errorf("%w: scalar %s expected", ErrNonConforming, t.Kind)
		}
		return nil
	case EnumValue:
		_, kind, err := r.Enumerators(t)
		if err != nil {
			return err
		}
		if val.Kind != kind || val.Bits&^kind.Mask() != 0 {
			return fmt.Errorf("%w: enum backing %s expected", ErrNonConforming, kind)
		}
		return nil
	case VectorValue:
		return r.conformsElems(val.Elems, t)
	case ArrayValue:
		if len(val.Elems) != t.Length {
			return fmt.Errorf("%w: array length %d expected", ErrNonConforming, t.Length)
		}
		return r.conformsElems(val.Elems, t)
	case StructValue:
		fields, err := r.Fields(t)
		if err != nil {
			return err
		}
		if len(fields) != len(val.Fields) {
			return fmt.Errorf("%w: %d struct fields expected", ErrNonConforming, len(fields))
		}
		for i, f := range fields {
			if val.Fields[i].Name != f.Name {
				return fmt.Errorf("%w: field %q expected", ErrNonConforming, f.Name)
			}
			if err := r.Conforms(val.Fields[i].Value, f); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	case UnionValue:
		fields, err := r.Fields(t)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if f.Name == val.Selected.Name {
				return r.Conforms(val.Selected.Value, f)
			}
		}
		return fmt.Errorf("%w: unknown union alternative %q", ErrNonConforming, val.Selected.Name)
	case OpaqueValue:
		return nil
	}
	return fmt.Errorf("%w: unknown value type %T", ErrNonConforming, v)
}

func (r *TypeRegistry) conformsElems(elems []Value, t TypeSpec) error {
	if t.Elem == nil {
		return newShapeError(t, "missing element type")
	}
	for i, e := range elems {
		if err := r.Conforms(e, *t.Elem); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}
