package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/registry"
)

// CompileInterface parses a CUE value into an InterfaceSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the interface struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`interface: IFoo: { ... }`)
//	spec, err := CompileInterface(v.LookupPath(cue.ParsePath("interface.IFoo")))
//
// An optional name field supplies the fully qualified type name; it
// defaults to the struct label. The short form of the name scopes nested
// declarations: declaration Point of "android.hardware.foo@1.0::IFoo" is
// registered as "IFoo::Point".
//
// Type references are left as written. Link resolves them once every
// interface is compiled.
func CompileInterface(v cue.Value) (*ir.InterfaceSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return nil, &CompileError{Field: "interface", Message: "interface must be a labeled struct", Pos: v.Pos()}
	}

	spec := &ir.InterfaceSpec{TypeName: ident(unquote(labels[len(labels)-1]))}
	if nameVal := field(v, "name"); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.TypeName = ident(name)
	}
	scope := registry.ShortName(spec.TypeName)

	var err error
	spec.NestedTypes, err = parseDeclarations(v, scope)
	if err != nil {
		return nil, err
	}

	spec.Functions, err = parseFunctions(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Functions) == 0 {
		return nil, &CompileError{
			Field:   "functions",
			Message: "at least one function is required",
			Pos:     v.Pos(),
		}
	}

	return spec, nil
}

// parseDeclarations compiles the types block of an interface or of a
// declaration. Each declaration may nest its own types block.
func parseDeclarations(v cue.Value, scope string) ([]ir.TypeSpec, error) {
	typesVal := field(v, "types")
	if !typesVal.Exists() {
		return nil, nil
	}

	iter, err := typesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ir.TypeSpec
	for iter.Next() {
		name := scope + "::" + ident(iter.Label())
		t, err := parseType(iter.Value())
		if err != nil {
			return nil, err
		}
		switch t.Tag {
		case ir.TagStruct, ir.TagUnion, ir.TagEnum, ir.TagMask:
		default:
			return nil, &CompileError{
				Field:   "types." + iter.Label(),
				Message: fmt.Sprintf("only struct, union, enum and mask can be declared, got %s", t.Tag),
				Pos:     iter.Value().Pos(),
			}
		}
		if t.PredefinedTypeName != "" && t.Tag != ir.TagMask {
			return nil, &CompileError{
				Field:   "types." + iter.Label(),
				Message: "a declaration must be inline, not a reference",
				Pos:     iter.Value().Pos(),
			}
		}
		t.Name = name
		t.Nested, err = parseDeclarations(iter.Value(), name)
		if err != nil {
			return nil, err
		}
		decls = append(decls, t)
	}
	return decls, nil
}

// parseFunctions extracts the function signatures in declaration order.
func parseFunctions(v cue.Value) ([]ir.FunctionSignature, error) {
	fnsVal := field(v, "functions")
	if !fnsVal.Exists() {
		return nil, nil
	}

	iter, err := fnsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fns []ir.FunctionSignature
	for iter.Next() {
		fn := ir.FunctionSignature{Name: ident(iter.Label())}

		fn.Args, err = parseTypeList(field(iter.Value(), "args"), "functions."+iter.Label()+".args", false)
		if err != nil {
			return nil, err
		}
		fn.Returns, err = parseTypeList(field(iter.Value(), "returns"), "functions."+iter.Label()+".returns", false)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// field looks up a single label. Labels are matched literally, so names
// such as string or bool that are also CUE identifiers work.
func field(v cue.Value, name string) cue.Value {
	return v.LookupPath(cue.MakePath(cue.Str(name)))
}

// ident NFC-normalizes an identifier so visually identical names written
// with different Unicode compositions are registered once.
func ident(s string) string {
	return norm.NFC.String(s)
}

func unquote(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}
