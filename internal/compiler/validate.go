package compiler

import (
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoFunctions     = "E101" // interface declares no functions
	ErrDuplicateName   = "E102" // duplicate interface, function, field or declaration
	ErrInvalidShape    = "E103" // type node violates its structural invariants
	ErrUnresolvedType  = "E104" // reference to an undeclared type
	ErrTagMismatch     = "E105" // reference resolves to a declaration of another kind
	ErrEmptyEnum       = "E106" // enum or mask without enumerators
	ErrRecursiveType   = "E107" // declaration reaches itself
	ErrInvalidCallable = "E108" // function name is empty
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks linked interfaces as a set. Returns all errors found
// (does not fail-fast), in a deterministic order.
//
// A set that validates cleanly never makes the mutator report an
// invariant violation.
func Validate(specs []ir.InterfaceSpec) []ValidationError {
	v := &validator{types: ir.NewTypeRegistry(specs)}

	seenSpecs := make(map[string]bool)
	seenDecls := make(map[string]bool)
	for _, spec := range specs {
		if seenSpecs[spec.TypeName] {
			v.add(spec.TypeName, ErrDuplicateName, "interface declared more than once")
		}
		seenSpecs[spec.TypeName] = true

		if len(spec.Functions) == 0 {
			v.add(spec.TypeName, ErrNoFunctions, "at least one function is required")
		}

		for _, decl := range spec.NestedTypes {
			v.declaration(decl, seenDecls)
		}

		fnNames := make(map[string]bool)
		for i, fn := range spec.Functions {
			path := fmt.Sprintf("%s.functions[%d]", spec.TypeName, i)
			if fn.Name == "" {
				v.add(path, ErrInvalidCallable, "function name is required")
			} else if fnNames[fn.Name] {
				v.add(path, ErrDuplicateName, fmt.Sprintf("duplicate function name: %q", fn.Name))
			}
			fnNames[fn.Name] = true

			for j, arg := range fn.Args {
				v.typeSpec(arg, fmt.Sprintf("%s.%s.args[%d]", spec.TypeName, fn.Name, j))
			}
			for j, ret := range fn.Returns {
				v.typeSpec(ret, fmt.Sprintf("%s.%s.returns[%d]", spec.TypeName, fn.Name, j))
			}
		}
	}

	for _, c := range AnalyzeTypeCycles(specs) {
		v.add(c.Path[0], ErrRecursiveType, c.Message)
	}
	return v.errs
}

type validator struct {
	types *ir.TypeRegistry
	errs  []ValidationError
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) declaration(decl ir.TypeSpec, seen map[string]bool) {
	if seen[decl.Name] {
		v.add(decl.Name, ErrDuplicateName, "type declared more than once")
	}
	seen[decl.Name] = true

	v.typeSpec(decl, decl.Name)
	for _, n := range decl.Nested {
		v.declaration(n, seen)
	}
}

// typeSpec checks one node and its children. Nested declarations are
// checked by declaration.
func (v *validator) typeSpec(t ir.TypeSpec, path string) {
	if (t.Tag == ir.TagEnum || t.Tag == ir.TagMask) && t.PredefinedTypeName == "" && len(t.Enumerators) == 0 {
		v.add(path, ErrEmptyEnum, "enum declares no enumerators")
		return
	}
	if err := t.Validate(); err != nil {
		v.add(path, ErrInvalidShape, err.Error())
		return
	}

	switch t.Tag {
	case ir.TagStruct, ir.TagUnion:
		if t.PredefinedTypeName != "" {
			v.reference(t, path)
			return
		}
		names := make(map[string]bool)
		for _, f := range t.Fields {
			if names[f.Name] {
				v.add(path, ErrDuplicateName, fmt.Sprintf("duplicate field name: %q", f.Name))
			}
			names[f.Name] = true
			v.typeSpec(f, path+"."+f.Name)
		}
	case ir.TagEnum, ir.TagMask:
		if t.PredefinedTypeName != "" {
			v.reference(t, path)
		}
	case ir.TagVector, ir.TagArray:
		v.typeSpec(*t.Elem, path+"[]")
	}
}

// reference checks that a predefined name resolves to a compatible
// declaration. A mask may name an enum.
func (v *validator) reference(t ir.TypeSpec, path string) {
	decl, ok := v.types.Lookup(t.PredefinedTypeName)
	if !ok {
		v.add(path, ErrUnresolvedType, fmt.Sprintf("unknown type %q", t.PredefinedTypeName))
		return
	}
	if decl.Tag == t.Tag || (t.Tag == ir.TagMask && decl.Tag == ir.TagEnum) {
		return
	}
	v.add(path, ErrTagMismatch, fmt.Sprintf("%q is a %s, not a %s", t.PredefinedTypeName, decl.Tag, t.Tag))
}
