package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders v on one line for logs and the decode command:
//
//	i32(-3)  "abc"  enum u8(4)  [u8(1), u8(2)]  {x: i32(1), y: i32(2)}
//	<b: "x">  interface(IBar)#5  handle(?)
func FormatValue(v Value) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

// FormatCall renders a call as instance.function(args...).
func FormatCall(c CallSpec) string {
	var b strings.Builder
	b.WriteString(c.Instance)
	b.WriteByte('.')
	b.WriteString(c.Function)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		writeValue(&b, a)
	}
	b.WriteByte(')')
	return b.String()
}

func writeValue(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil:
		b.WriteString("<nil>")
	case VoidValue:
		b.WriteString("void")
	case ScalarValue:
		switch {
		case val.Kind == KindBool:
			b.WriteString(strconv.FormatBool(val.Bits != 0))
		case val.Kind.IsFloat():
			fmt.Fprintf(b, "%s(%g)", val.Kind, val.Float())
		case val.Kind.IsSigned():
			fmt.Fprintf(b, "%s(%d)", val.Kind, val.Int())
		default:
			fmt.Fprintf(b, "%s(%d)", val.Kind, val.Bits)
		}
	case StringValue:
		b.WriteString(strconv.Quote(string(val.Bytes)))
	case EnumValue:
		fmt.Fprintf(b, "%s %s(%d)", val.Tag(), val.Kind, val.Bits)
	case VectorValue:
		writeElems(b, val.Elems)
	case ArrayValue:
		writeElems(b, val.Elems)
	case StructValue:
		b.WriteByte('{')
		for i, f := range val.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			writeValue(b, f.Value)
		}
		b.WriteByte('}')
	case UnionValue:
		b.WriteByte('<')
		b.WriteString(val.Selected.Name)
		b.WriteString(": ")
		writeValue(b, val.Selected.Value)
		b.WriteByte('>')
	case OpaqueValue:
		name := val.TypeName
		if name == "" {
			name = "?"
		}
		fmt.Fprintf(b, "%s(%s)", val.Kind, name)
		if !val.Placeholder {
			fmt.Fprintf(b, "#%d", uint64(val.Handle))
		}
	default:
		fmt.Fprintf(b, "%T", v)
	}
}

func writeElems(b *strings.Builder, elems []Value) {
	b.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		writeValue(b, e)
	}
	b.WriteByte(']')
}
