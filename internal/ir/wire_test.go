package ir

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExecution() ExecutionSpec {
	return ExecutionSpec{
		Calls: []CallSpec{
			{
				Instance: "IFoo",
				Function: "doThing",
				Args: []Value{
					NewScalar(KindI32, 7),
					StringValue{Bytes: []byte("ab")},
					EnumValue{Kind: KindU8, Bits: 2},
					StructValue{Fields: []NamedValue{{Name: "x", Value: NewScalar(KindI32, 1)}}},
					UnionValue{Selected: NamedValue{Name: "b", Value: Placeholder(TagInterface, "IBar")}},
				},
			},
		},
	}
}

func TestSerialize_Golden(t *testing.T) {
	spec := sampleExecution()
	data, err := Serialize(&spec)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "execution", data)
}

func TestSerialize_SetsValidityMarker(t *testing.T) {
	spec := sampleExecution()
	require.False(t, spec.Valid)

	_, err := Serialize(&spec)
	require.NoError(t, err)
	assert.True(t, spec.Valid)
}

func TestDeserialize_RoundTrip(t *testing.T) {
	specs := []ExecutionSpec{
		sampleExecution(),
		{Calls: []CallSpec{}},
		{Calls: []CallSpec{{
			Instance: "IBar",
			Function: "all",
			Args: []Value{
				VoidValue{},
				NewScalar(KindF64, 0x7ff8000000000001),
				NewScalar(KindBool, 1),
				StringValue{Bytes: []byte{}},
				EnumValue{Mask: true, Kind: KindU32, Bits: 0xffffffff},
				VectorValue{Elems: []Value{}},
				ArrayValue{Elems: []Value{NewScalar(KindU8, 1), NewScalar(KindU8, 255)}},
				OpaqueValue{Kind: TagCallback, TypeName: "ICb", Handle: 42},
				Placeholder(TagFmqSync, ""),
				Placeholder(TagMemory, ""),
			},
		}}},
	}

	for i, spec := range specs {
		data, err := Serialize(&spec)
		require.NoError(t, err, "spec %d", i)

		got, ok := Deserialize(data)
		require.True(t, ok, "spec %d", i)
		assert.True(t, spec.Equal(got), "spec %d: round trip changed the execution", i)
	}
}

func TestDeserialize_RejectsMissingMarker(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"marker false", `{"v":1,"valid":false,"calls":[]}`},
		{"marker absent", `{"v":1,"calls":[]}`},
		{"wrong version", `{"v":2,"valid":true,"calls":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Deserialize([]byte(tt.data))
			assert.False(t, ok)
		})
	}
}

func TestDeserialize_RejectsMalformed(t *testing.T) {
	spec := sampleExecution()
	data, err := Serialize(&spec)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xff, 0x00, 0x13}},
		{"truncated", data[:len(data)/2]},
		{"trailing data", append(append([]byte{}, data...), []byte(`{}`)...)},
		{"unknown tag", []byte(`{"v":1,"valid":true,"calls":[{"instance":"I","function":"f","args":[{"tag":"bogus"}]}]}`)},
		{"unknown kind", []byte(`{"v":1,"valid":true,"calls":[{"instance":"I","function":"f","args":[{"tag":"scalar","kind":"i128"}]}]}`)},
		{"bits overflow", []byte(`{"v":1,"valid":true,"calls":[{"instance":"I","function":"f","args":[{"tag":"scalar","kind":"u8","bits":256}]}]}`)},
		{"empty union", []byte(`{"v":1,"valid":true,"calls":[{"instance":"I","function":"f","args":[{"tag":"union"}]}]}`)},
		{"unknown field", []byte(`{"v":1,"valid":true,"calls":[],"extra":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Deserialize(tt.data)
			assert.False(t, ok)
		})
	}
}

func TestExecutionID_StableAndContentAddressed(t *testing.T) {
	a := sampleExecution()
	b := sampleExecution()
	b.Valid = true

	idA, err := ExecutionID(a)
	require.NoError(t, err)
	idB, err := ExecutionID(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB, "validity marker must not affect identity")
	assert.Len(t, idA, 64)
	assert.False(t, a.Valid, "ExecutionID must not modify its input")

	b.Calls[0].Function = "other"
	idC, err := ExecutionID(b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idC)
}
