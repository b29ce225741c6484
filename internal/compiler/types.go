package compiler

import (
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/ifuzz/internal/ir"
)

// Type expressions
//
// A type is a CUE struct with exactly one kind key, plus an optional name:
//
//	{scalar: "i32"}
//	{string: {}}
//	{enum: "Color"}                           reference
//	{enum: {kind: "u8", values: {RED: 1}}}    inline
//	{mask: "Color"} / {mask: {kind, values}}
//	{struct: "Point"} / {struct: [fields...]}
//	{union: "Choice"} / {union: [fields...]}
//	{vector: <type>}
//	{array: {len: 4, elem: <type>}}
//	{interface: "IBar"} / {callback: "IFooCallback"}
//	{handle: {}} / {memory: {}} / {pointer: {}}
//	{fmq_sync: <type>} / {fmq_unsync: <type>}
//
// Struct and union fields are types that must carry a name.

// kindKeys maps each kind key to its tag. Void is not expressible.
var kindKeys = map[string]ir.TypeTag{
	"scalar":     ir.TagScalar,
	"string":     ir.TagString,
	"enum":       ir.TagEnum,
	"mask":       ir.TagMask,
	"vector":     ir.TagVector,
	"array":      ir.TagArray,
	"struct":     ir.TagStruct,
	"union":      ir.TagUnion,
	"callback":   ir.TagCallback,
	"interface":  ir.TagInterface,
	"memory":     ir.TagMemory,
	"pointer":    ir.TagPointer,
	"handle":     ir.TagHandle,
	"fmq_sync":   ir.TagFmqSync,
	"fmq_unsync": ir.TagFmqUnsync,
}

// metaKeys may accompany the kind key.
var metaKeys = map[string]bool{"name": true, "types": true}

// parseType compiles one type expression.
func parseType(v cue.Value) (ir.TypeSpec, error) {
	if err := v.Err(); err != nil {
		return ir.TypeSpec{}, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return ir.TypeSpec{}, &CompileError{Field: "type", Message: "type must be a struct with one kind key", Pos: v.Pos()}
	}

	iter, err := v.Fields()
	if err != nil {
		return ir.TypeSpec{}, formatCUEError(err)
	}
	var kinds []string
	for iter.Next() {
		label := iter.Label()
		if metaKeys[label] {
			continue
		}
		if _, ok := kindKeys[label]; !ok {
			return ir.TypeSpec{}, &CompileError{Field: "type", Message: fmt.Sprintf("unknown kind %q", label), Pos: iter.Value().Pos()}
		}
		kinds = append(kinds, label)
	}
	if len(kinds) != 1 {
		sort.Strings(kinds)
		return ir.TypeSpec{}, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("exactly one kind key required, got [%s]", strings.Join(kinds, ", ")),
			Pos:     v.Pos(),
		}
	}

	key := kinds[0]
	body := field(v, key)
	t := ir.TypeSpec{Tag: kindKeys[key]}

	if nameVal := field(v, "name"); nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return ir.TypeSpec{}, formatCUEError(err)
		}
		t.Name = ident(name)
	}

	switch t.Tag {
	case ir.TagScalar:
		s, err := body.String()
		if err != nil {
			return ir.TypeSpec{}, formatCUEError(err)
		}
		kind, ok := ir.ParseScalarKind(s)
		if !ok {
			return ir.TypeSpec{}, &CompileError{Field: "scalar", Message: fmt.Sprintf("unknown scalar kind %q", s), Pos: body.Pos()}
		}
		t.Kind = kind

	case ir.TagEnum, ir.TagMask:
		if ref, ok := reference(body); ok {
			t.PredefinedTypeName = ref
			break
		}
		t.Kind, t.Enumerators, err = parseEnumBody(body, key)
		if err != nil {
			return ir.TypeSpec{}, err
		}

	case ir.TagStruct, ir.TagUnion:
		if ref, ok := reference(body); ok {
			t.PredefinedTypeName = ref
			break
		}
		t.Fields, err = parseTypeList(body, key, true)
		if err != nil {
			return ir.TypeSpec{}, err
		}
		if t.Fields == nil {
			t.Fields = []ir.TypeSpec{}
		}

	case ir.TagVector, ir.TagFmqSync, ir.TagFmqUnsync:
		if t.Tag != ir.TagVector && !isStruct(body) {
			break
		}
		elem, err := parseType(body)
		if err != nil {
			return ir.TypeSpec{}, err
		}
		t.Elem = &elem

	case ir.TagArray:
		n, err := field(body, "len").Int64()
		if err != nil {
			return ir.TypeSpec{}, &CompileError{Field: "array.len", Message: "array requires an integer len", Pos: body.Pos()}
		}
		t.Length = int(n)
		elem, err := parseType(field(body, "elem"))
		if err != nil {
			return ir.TypeSpec{}, err
		}
		t.Elem = &elem

	case ir.TagInterface, ir.TagCallback:
		ref, ok := reference(body)
		if !ok {
			return ir.TypeSpec{}, &CompileError{Field: key, Message: "expected an interface type name", Pos: body.Pos()}
		}
		t.PredefinedTypeName = ref
	}

	return t, nil
}

// parseTypeList compiles a list of types. Struct and union fields must be
// named.
func parseTypeList(v cue.Value, path string, requireNames bool) ([]ir.TypeSpec, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ir.TypeSpec
	seen := map[string]bool{}
	for i := 0; iter.Next(); i++ {
		t, err := parseType(iter.Value())
		if err != nil {
			return nil, err
		}
		if requireNames {
			if t.Name == "" {
				return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", path, i), Message: "field name is required", Pos: iter.Value().Pos()}
			}
			if seen[t.Name] {
				return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", path, i), Message: fmt.Sprintf("duplicate field %q", t.Name), Pos: iter.Value().Pos()}
			}
			seen[t.Name] = true
		}
		out = append(out, t)
	}
	return out, nil
}

// parseEnumBody reads {kind, values}. Values keep declaration order and are
// truncated to the backing kind; negative values are stored two's-complement.
func parseEnumBody(v cue.Value, key string) (ir.ScalarKind, []ir.Enumerator, error) {
	kind := ir.KindU32
	if kindVal := field(v, "kind"); kindVal.Exists() {
		s, err := kindVal.String()
		if err != nil {
			return 0, nil, formatCUEError(err)
		}
		k, ok := ir.ParseScalarKind(s)
		if !ok || k.IsFloat() || k == ir.KindBool {
			return 0, nil, &CompileError{Field: key + ".kind", Message: fmt.Sprintf("invalid backing kind %q", s), Pos: kindVal.Pos()}
		}
		kind = k
	}

	valuesVal := field(v, "values")
	if !valuesVal.Exists() {
		return kind, nil, nil
	}
	iter, err := valuesVal.Fields()
	if err != nil {
		return 0, nil, formatCUEError(err)
	}

	var enums []ir.Enumerator
	for iter.Next() {
		bits, err := enumBits(iter.Value())
		if err != nil {
			return 0, nil, err
		}
		enums = append(enums, ir.Enumerator{Name: ident(iter.Label()), Value: bits & kind.Mask()})
	}
	return kind, enums, nil
}

func enumBits(v cue.Value) (uint64, error) {
	if n, err := v.Int64(); err == nil {
		return uint64(n), nil
	}
	n, err := v.Uint64()
	if err != nil {
		return 0, &CompileError{Field: "values", Message: "enumerator value must be an integer", Pos: v.Pos()}
	}
	return n, nil
}

// reference returns the referenced name when v is a string.
func reference(v cue.Value) (string, bool) {
	if v.IncompleteKind() != cue.StringKind {
		return "", false
	}
	s, err := v.String()
	if err != nil || s == "" {
		return "", false
	}
	return ident(s), true
}

func isStruct(v cue.Value) bool {
	return v.IncompleteKind() == cue.StructKind
}
