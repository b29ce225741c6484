package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifuzz/internal/ir"
)

func TestFakeInvoker_ScriptedAndDefault(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	inv := NewFakeInvoker().
		Returning("IFoo", "getBar", InterfaceRef(BarType, 7)).
		Failing("IBar", "ping", boom)

	res, err := inv.Invoke(ctx, ir.CallSpec{Instance: "IFoo", Function: "getBar"}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, ir.Handle(7), res[0].(ir.OpaqueValue).Handle)

	_, err = inv.Invoke(ctx, ir.CallSpec{Instance: "IBar", Function: "ping"}, 2)
	assert.ErrorIs(t, err, boom)

	res, err = inv.Invoke(ctx, ir.CallSpec{Instance: "IFoo", Function: "doThing"}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)

	assert.Equal(t, 1, inv.CallCount("IFoo", "getBar"))
	assert.Len(t, inv.Invocations, 3)
}

func TestFakeInvoker_Bindings(t *testing.T) {
	ctx := context.Background()
	inv := NewFakeInvoker().FailBinding(BazType, errors.New("dead object"))

	h1, err := inv.InstantiateFromHandle(ctx, FooType, 0)
	require.NoError(t, err)
	h2, err := inv.InstantiateFromHandle(ctx, BarType, 7)
	require.NoError(t, err)
	assert.Equal(t, ir.Handle(1000), h1)
	assert.Equal(t, ir.Handle(1001), h2)

	_, err = inv.InstantiateFromHandle(ctx, BazType, 9)
	assert.Error(t, err)
	assert.Equal(t, []Binding{{FooType, 0}, {BarType, 7}, {BazType, 9}}, inv.Bindings)
}

func TestFakeInvoker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFakeInvoker().Invoke(ctx, ir.CallSpec{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpecs_Validate(t *testing.T) {
	for _, spec := range Specs() {
		for _, nt := range spec.NestedTypes {
			assert.NoError(t, nt.Validate(), "%s", nt.Name)
		}
		for _, fn := range spec.Functions {
			for _, a := range fn.Args {
				assert.NoError(t, a.Validate(), "%s.%s", spec.TypeName, fn.Name)
			}
		}
	}
}
