package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i32(name string) TypeSpec {
	return TypeSpec{Tag: TagScalar, Kind: KindI32, Name: name}
}

func fooInterface() InterfaceSpec {
	return InterfaceSpec{
		TypeName: "IFoo",
		NestedTypes: []TypeSpec{
			{
				Tag:    TagStruct,
				Name:   "IFoo::Point",
				Fields: []TypeSpec{i32("x"), i32("y")},
				Nested: []TypeSpec{
					{Tag: TagEnum, Name: "IFoo::Point::Axis", Kind: KindU8, Enumerators: []Enumerator{{Name: "X", Value: 0}, {Name: "Y", Value: 1}}},
				},
			},
			{Tag: TagEnum, Name: "IFoo::Empty", Kind: KindU8, PredefinedTypeName: "IFoo::Missing"},
			{Tag: TagUnion, Name: "IFoo::Choice", Fields: []TypeSpec{i32("a"), {Tag: TagString, Name: "b"}}},
		},
	}
}

func TestNewTypeRegistry_WalksNestedDeclarations(t *testing.T) {
	reg := NewTypeRegistry([]InterfaceSpec{fooInterface()})

	assert.Equal(t, []string{"IFoo", "IFoo::Choice", "IFoo::Empty", "IFoo::Point", "IFoo::Point::Axis"}, reg.Names())

	iface, ok := reg.Lookup("IFoo")
	require.True(t, ok)
	assert.Equal(t, TagInterface, iface.Tag)

	axis, ok := reg.Lookup("IFoo::Point::Axis")
	require.True(t, ok)
	assert.Equal(t, TagEnum, axis.Tag)
}

func TestTypeRegistry_Fields(t *testing.T) {
	reg := NewTypeRegistry([]InterfaceSpec{fooInterface()})

	fields, err := reg.Fields(TypeSpec{Tag: TagStruct, PredefinedTypeName: "IFoo::Point"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "x", fields[0].Name)

	inline := TypeSpec{Tag: TagStruct, Fields: []TypeSpec{i32("z")}}
	fields, err = reg.Fields(inline)
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	_, err = reg.Fields(TypeSpec{Tag: TagStruct, PredefinedTypeName: "IFoo::Nope"})
	require.Error(t, err)
	assert.True(t, IsInvariantError(err))

	_, err = reg.Fields(TypeSpec{Tag: TagUnion, PredefinedTypeName: "IFoo::Point"})
	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, ErrCodeShapeMismatch, ie.Code)
}

func TestTypeRegistry_Enumerators(t *testing.T) {
	reg := NewTypeRegistry([]InterfaceSpec{fooInterface()})

	enums, kind, err := reg.Enumerators(TypeSpec{Tag: TagMask, PredefinedTypeName: "IFoo::Point::Axis"})
	require.NoError(t, err)
	assert.Equal(t, KindU8, kind)
	assert.Len(t, enums, 2)

	_, _, err = reg.Enumerators(TypeSpec{Tag: TagEnum, Name: "bare"})
	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, ErrCodeEmptyEnum, ie.Code)

	_, _, err = reg.Enumerators(TypeSpec{Tag: TagEnum, PredefinedTypeName: "IFoo::Missing"})
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, ErrCodeMissingType, ie.Code)
}

func TestTypeRegistry_Conforms(t *testing.T) {
	reg := NewTypeRegistry([]InterfaceSpec{fooInterface()})
	point := TypeSpec{Tag: TagStruct, PredefinedTypeName: "IFoo::Point"}
	choice := TypeSpec{Tag: TagUnion, PredefinedTypeName: "IFoo::Choice"}
	arr := TypeSpec{Tag: TagArray, Length: 2, Elem: &TypeSpec{Tag: TagScalar, Kind: KindU8}}

	good := StructValue{Fields: []NamedValue{{Name: "x", Value: NewScalar(KindI32, 1)}, {Name: "y", Value: NewScalar(KindI32, 2)}}}
	assert.NoError(t, reg.Conforms(good, point))

	swapped := StructValue{Fields: []NamedValue{{Name: "y", Value: NewScalar(KindI32, 1)}, {Name: "x", Value: NewScalar(KindI32, 2)}}}
	assert.ErrorIs(t, reg.Conforms(swapped, point), ErrNonConforming)

	assert.NoError(t, reg.Conforms(UnionValue{Selected: NamedValue{Name: "b", Value: StringValue{}}}, choice))
	assert.ErrorIs(t, reg.Conforms(UnionValue{Selected: NamedValue{Name: "c", Value: StringValue{}}}, choice), ErrNonConforming)
	assert.ErrorIs(t, reg.Conforms(UnionValue{Selected: NamedValue{Name: "a", Value: StringValue{}}}, choice), ErrNonConforming)

	assert.NoError(t, reg.Conforms(ArrayValue{Elems: []Value{NewScalar(KindU8, 1), NewScalar(KindU8, 2)}}, arr))
	assert.ErrorIs(t, reg.Conforms(ArrayValue{Elems: []Value{NewScalar(KindU8, 1)}}, arr), ErrNonConforming)
	assert.ErrorIs(t, reg.Conforms(NewScalar(KindI64, 1), i32("v")), ErrNonConforming)
	assert.ErrorIs(t, reg.Conforms(nil, i32("v")), ErrNonConforming)
}

func TestTypeSpec_Validate(t *testing.T) {
	elem := i32("")
	tests := []struct {
		name    string
		spec    TypeSpec
		wantErr bool
	}{
		{"scalar", i32("a"), false},
		{"vector", TypeSpec{Tag: TagVector, Elem: &elem}, false},
		{"vector with length", TypeSpec{Tag: TagVector, Elem: &elem, Length: 3}, true},
		{"array without length", TypeSpec{Tag: TagArray, Elem: &elem}, true},
		{"array", TypeSpec{Tag: TagArray, Elem: &elem, Length: 4}, false},
		{"struct both", TypeSpec{Tag: TagStruct, Fields: []TypeSpec{elem}, PredefinedTypeName: "P"}, true},
		{"enum neither", TypeSpec{Tag: TagEnum, Kind: KindU8}, true},
		{"interface unnamed", TypeSpec{Tag: TagInterface}, true},
		{"union empty", TypeSpec{Tag: TagUnion}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.True(t, IsInvariantError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
