package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/registry"
)

// Link resolves the type references of compiled interfaces in place.
//
// A struct, union, enum or mask reference is looked up in the scope it was
// written in, then in each enclosing scope out to the interface, and
// finally as a fully qualified name. "Point" used inside IFoo::Outer tries
// IFoo::Outer::Point, then IFoo::Point, then Point.
//
// Interface and callback references are rewritten to the full type name of
// a loaded interface with the same full or short name. References to
// interfaces that were not loaded are kept; the engine skips them at
// discovery.
//
// Every unresolved declaration reference is reported.
func Link(specs []ir.InterfaceSpec) error {
	l := &linker{
		decls:      make(map[string]bool),
		interfaces: make(map[string]string),
	}
	for _, spec := range specs {
		l.interfaces[spec.TypeName] = spec.TypeName
		if short := registry.ShortName(spec.TypeName); l.interfaces[short] == "" {
			l.interfaces[short] = spec.TypeName
		}
		for _, t := range spec.NestedTypes {
			l.collect(t)
		}
	}

	for i := range specs {
		spec := &specs[i]
		scope := registry.ShortName(spec.TypeName)
		for j := range spec.NestedTypes {
			l.linkDecl(&spec.NestedTypes[j], scope)
		}
		for fi := range spec.Functions {
			fn := &spec.Functions[fi]
			for ai := range fn.Args {
				l.link(&fn.Args[ai], scope, fmt.Sprintf("%s.%s.args[%d]", scope, fn.Name, ai))
			}
			for ri := range fn.Returns {
				l.link(&fn.Returns[ri], scope, fmt.Sprintf("%s.%s.returns[%d]", scope, fn.Name, ri))
			}
		}
	}
	return errors.Join(l.errs...)
}

type linker struct {
	decls      map[string]bool
	interfaces map[string]string
	errs       []error
}

func (l *linker) collect(t ir.TypeSpec) {
	if t.Name != "" {
		l.decls[t.Name] = true
	}
	for _, n := range t.Nested {
		l.collect(n)
	}
}

// linkDecl links a declaration. Its own name is the scope for its fields.
func (l *linker) linkDecl(t *ir.TypeSpec, scope string) {
	if t.PredefinedTypeName != "" {
		l.link(t, scope, t.Name)
	}
	for i := range t.Fields {
		l.link(&t.Fields[i], t.Name, t.Name+"."+t.Fields[i].Name)
	}
	for i := range t.Nested {
		l.linkDecl(&t.Nested[i], t.Name)
	}
}

func (l *linker) link(t *ir.TypeSpec, scope, path string) {
	switch t.Tag {
	case ir.TagStruct, ir.TagUnion, ir.TagEnum, ir.TagMask:
		if t.PredefinedTypeName != "" {
			resolved, ok := l.resolve(t.PredefinedTypeName, scope)
			if !ok {
				l.errs = append(l.errs, &CompileError{
					Field:   "ref",
					Message: fmt.Sprintf("%s: unresolved %s reference %q", path, t.Tag, t.PredefinedTypeName),
				})
				return
			}
			t.PredefinedTypeName = resolved
		}
		for i := range t.Fields {
			l.link(&t.Fields[i], scope, path+"."+t.Fields[i].Name)
		}
	case ir.TagVector, ir.TagArray, ir.TagFmqSync, ir.TagFmqUnsync:
		if t.Elem != nil {
			l.link(t.Elem, scope, path+"[]")
		}
	case ir.TagInterface, ir.TagCallback:
		if full, ok := l.interfaces[t.PredefinedTypeName]; ok {
			t.PredefinedTypeName = full
		} else if full, ok := l.interfaces[registry.ShortName(t.PredefinedTypeName)]; ok {
			t.PredefinedTypeName = full
		}
	}
}

func (l *linker) resolve(ref, scope string) (string, bool) {
	for s := scope; s != ""; {
		if name := s + "::" + ref; l.decls[name] {
			return name, true
		}
		i := strings.LastIndex(s, "::")
		if i < 0 {
			break
		}
		s = s[:i]
	}
	return ref, l.decls[ref]
}
