package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire format
//
// An ExecutionSpec is framed as compact JSON. Struct fields and the selected
// union alternative are carried as named elements; scalar and enum payloads
// are raw bits. The "valid" marker is written only by Serialize, so any
// buffer a byte-level mutator produces from scratch decodes as invalid.

type wireExecution struct {
	Version int        `json:"v"`
	Valid   bool       `json:"valid"`
	Calls   []wireCall `json:"calls"`
}

type wireCall struct {
	Instance string      `json:"instance"`
	Function string      `json:"function"`
	Args     []wireValue `json:"args"`
}

type wireValue struct {
	Tag         string      `json:"tag"`
	Name        string      `json:"name,omitempty"`
	Kind        string      `json:"kind,omitempty"`
	Bits        uint64      `json:"bits,omitempty"`
	Bytes       []byte      `json:"bytes,omitempty"`
	Elems       []wireValue `json:"elems,omitempty"`
	TypeName    string      `json:"type_name,omitempty"`
	Handle      uint64      `json:"handle,omitempty"`
	Placeholder bool        `json:"placeholder,omitempty"`
}

// Serialize marks spec valid and encodes it for the external fuzz driver.
func Serialize(spec *ExecutionSpec) ([]byte, error) {
	spec.Valid = true

	w := wireExecution{
		Version: WireVersion,
		Valid:   true,
		Calls:   make([]wireCall, len(spec.Calls)),
	}
	for i, c := range spec.Calls {
		args, err := encodeValues(c.Args)
		if err != nil {
			return nil, fmt.Errorf("serialize call %d (%s): %w", i, c.Key(), err)
		}
		w.Calls[i] = wireCall{Instance: c.Instance, Function: c.Function, Args: args}
	}
	return json.Marshal(w)
}

// Deserialize decodes a buffer produced by Serialize. It returns false for
// malformed or truncated input, an unknown wire version, or a buffer whose
// validity marker is not set. It never panics on arbitrary input.
func Deserialize(data []byte) (ExecutionSpec, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireExecution
	if err := dec.Decode(&w); err != nil {
		return ExecutionSpec{}, false
	}
	if dec.More() {
		return ExecutionSpec{}, false
	}
	if w.Version != WireVersion || !w.Valid {
		return ExecutionSpec{}, false
	}

	spec := ExecutionSpec{Calls: make([]CallSpec, len(w.Calls)), Valid: true}
	for i, c := range w.Calls {
		args, err := decodeValues(c.Args)
		if err != nil {
			return ExecutionSpec{}, false
		}
		spec.Calls[i] = CallSpec{Instance: c.Instance, Function: c.Function, Args: args}
	}
	return spec, true
}

func encodeValues(vals []Value) ([]wireValue, error) {
	out := make([]wireValue, len(vals))
	for i, v := range vals {
		wv, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = wv
	}
	return out, nil
}

func encodeNamed(fields []NamedValue) ([]wireValue, error) {
	out := make([]wireValue, len(fields))
	for i, f := range fields {
		wv, err := encodeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		wv.Name = f.Name
		out[i] = wv
	}
	return out, nil
}

func encodeValue(v Value) (wireValue, error) {
	if v == nil {
		return wireValue{}, fmt.Errorf("nil value")
	}
	w := wireValue{Tag: v.Tag().String()}
	switch val := v.(type) {
	case VoidValue:
	case ScalarValue:
		w.Kind = val.Kind.String()
		w.Bits = val.Bits
	case StringValue:
		w.Bytes = val.Bytes
	case EnumValue:
		w.Kind = val.Kind.String()
		w.Bits = val.Bits
	case VectorValue:
		elems, err := encodeValues(val.Elems)
		if err != nil {
			return wireValue{}, err
		}
		w.Elems = elems
	case ArrayValue:
		elems, err := encodeValues(val.Elems)
		if err != nil {
			return wireValue{}, err
		}
		w.Elems = elems
	case StructValue:
		elems, err := encodeNamed(val.Fields)
		if err != nil {
			return wireValue{}, err
		}
		w.Elems = elems
	case UnionValue:
		elems, err := encodeNamed([]NamedValue{val.Selected})
		if err != nil {
			return wireValue{}, err
		}
		w.Elems = elems
	case OpaqueValue:
		w.TypeName = val.TypeName
		w.Handle = uint64(val.Handle)
		w.Placeholder = val.Placeholder
	default:
		return wireValue{}, fmt.Errorf("unknown value type %T", v)
	}
	return w, nil
}

func decodeValues(ws []wireValue) ([]Value, error) {
	out := make([]Value, len(ws))
	for i, w := range ws {
		v, err := decodeValue(w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeNamed(ws []wireValue) ([]NamedValue, error) {
	out := make([]NamedValue, len(ws))
	for i, w := range ws {
		v, err := decodeValue(w)
		if err != nil {
			return nil, err
		}
		out[i] = NamedValue{Name: w.Name, Value: v}
	}
	return out, nil
}

func decodeValue(w wireValue) (Value, error) {
	tag, ok := ParseTypeTag(w.Tag)
	if !ok {
		return nil, fmt.Errorf("unknown tag %q", w.Tag)
	}
	switch tag {
	case TagVoid:
		return VoidValue{}, nil
	case TagScalar, TagEnum, TagMask:
		kind, ok := ParseScalarKind(w.Kind)
		if !ok {
			return nil, fmt.Errorf("unknown scalar kind %q", w.Kind)
		}
		if w.Bits&^kind.Mask() != 0 {
			return nil, fmt.Errorf("bits exceed %s width", kind)
		}
		if tag == TagScalar {
			return ScalarValue{Kind: kind, Bits: w.Bits}, nil
		}
		return EnumValue{Mask: tag == TagMask, Kind: kind, Bits: w.Bits}, nil
	case TagString:
		b := w.Bytes
		if b == nil {
			b = []byte{}
		}
		return StringValue{Bytes: b}, nil
	case TagVector, TagArray:
		elems, err := decodeValues(w.Elems)
		if err != nil {
			return nil, err
		}
		if tag == TagVector {
			return VectorValue{Elems: elems}, nil
		}
		return ArrayValue{Elems: elems}, nil
	case TagStruct:
		fields, err := decodeNamed(w.Elems)
		if err != nil {
			return nil, err
		}
		return StructValue{Fields: fields}, nil
	case TagUnion:
		if len(w.Elems) != 1 {
			return nil, fmt.Errorf("union must carry exactly one alternative, got %d", len(w.Elems))
		}
		sel, err := decodeNamed(w.Elems)
		if err != nil {
			return nil, err
		}
		return UnionValue{Selected: sel[0]}, nil
	default:
		return OpaqueValue{Kind: tag, TypeName: w.TypeName, Handle: Handle(w.Handle), Placeholder: w.Placeholder}, nil
	}
}
