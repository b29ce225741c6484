package testutil

import "github.com/roach88/ifuzz/internal/ir"

// Fully qualified names of the fixture interfaces.
const (
	FooType = "android.hardware.tests.foo@1.0::IFoo"
	BarType = "android.hardware.tests.bar@1.0::IBar"
	BazType = "android.hardware.tests.baz@1.0::IBaz"
)

// Scalar returns an unnamed scalar type.
func Scalar(kind ir.ScalarKind) ir.TypeSpec {
	return ir.TypeSpec{Tag: ir.TagScalar, Kind: kind}
}

// Field returns t with its name set.
func Field(name string, t ir.TypeSpec) ir.TypeSpec {
	return t.Named(name)
}

// Ref returns a reference to a predefined declaration.
func Ref(tag ir.TypeTag, name string) ir.TypeSpec {
	return ir.TypeSpec{Tag: tag, PredefinedTypeName: name}
}

// InterfaceRef returns a live interface reference as an invoker would.
func InterfaceRef(typeName string, handle ir.Handle) ir.OpaqueValue {
	return ir.OpaqueValue{Kind: ir.TagInterface, TypeName: typeName, Handle: handle}
}

// FooSpec is the root fixture. IFoo declares a Point struct, a Choice union
// and a Color enum, and getBar returns an IBar reference.
func FooSpec() ir.InterfaceSpec {
	return ir.InterfaceSpec{
		TypeName: FooType,
		Functions: []ir.FunctionSignature{
			{Name: "doThing", Args: []ir.TypeSpec{Field("n", Scalar(ir.KindI32)), Field("s", ir.TypeSpec{Tag: ir.TagString})}},
			{Name: "getBar", Returns: []ir.TypeSpec{Ref(ir.TagInterface, BarType)}},
			{Name: "move", Args: []ir.TypeSpec{Ref(ir.TagStruct, "IFoo::Point")}},
			{Name: "pick", Args: []ir.TypeSpec{Ref(ir.TagUnion, "IFoo::Choice"), Ref(ir.TagEnum, "IFoo::Color")}},
		},
		NestedTypes: []ir.TypeSpec{
			{Tag: ir.TagStruct, Name: "IFoo::Point", Fields: []ir.TypeSpec{
				Field("x", Scalar(ir.KindI32)),
				Field("y", Scalar(ir.KindI32)),
			}},
			{Tag: ir.TagUnion, Name: "IFoo::Choice", Fields: []ir.TypeSpec{
				Field("a", Scalar(ir.KindI32)),
				Field("b", ir.TypeSpec{Tag: ir.TagString}),
			}},
			{Tag: ir.TagEnum, Name: "IFoo::Color", Kind: ir.KindU8, Enumerators: []ir.Enumerator{
				{Name: "RED", Value: 1},
				{Name: "GREEN", Value: 2},
				{Name: "BLUE", Value: 4},
			}},
		},
	}
}

// BarSpec is reachable from IFoo.getBar; getBaz returns an IBaz reference.
func BarSpec() ir.InterfaceSpec {
	return ir.InterfaceSpec{
		TypeName: BarType,
		Functions: []ir.FunctionSignature{
			{Name: "ping", Args: []ir.TypeSpec{Field("v", Scalar(ir.KindU8))}},
			{Name: "getBaz", Returns: []ir.TypeSpec{Ref(ir.TagInterface, BazType)}},
		},
	}
}

// BazSpec has a single argument-less function.
func BazSpec() ir.InterfaceSpec {
	return ir.InterfaceSpec{
		TypeName:  BazType,
		Functions: []ir.FunctionSignature{{Name: "noop"}},
	}
}

// Specs returns IFoo, IBar and IBaz.
func Specs() []ir.InterfaceSpec {
	return []ir.InterfaceSpec{FooSpec(), BarSpec(), BazSpec()}
}
