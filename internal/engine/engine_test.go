package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/mutator"
	"github.com/roach88/ifuzz/internal/registry"
	"github.com/roach88/ifuzz/internal/store"
	"github.com/roach88/ifuzz/internal/testutil"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, inv Invoker, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithSeed(1),
		WithExecSize(4),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-test")),
	}
	e, err := New(context.Background(), testutil.Specs(), "IFoo", inv, mutator.DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func call(instance, function string, args ...ir.Value) ir.CallSpec {
	return ir.CallSpec{Instance: instance, Function: function, Args: args}
}

func TestNew_RegistersRootFromHandleZero(t *testing.T) {
	inv := testutil.NewFakeInvoker()
	e := newTestEngine(t, inv)

	assert.Equal(t, "run-test", e.RunID())
	assert.Equal(t, "IFoo", e.Root())
	assert.Equal(t, uint64(1), e.Seed())
	assert.Equal(t, registry.StateUntouched, e.Registry().State("IFoo"))
	assert.Equal(t, []testutil.Binding{{TypeName: testutil.FooType, Handle: RootHandle}}, inv.Bindings)

	inst, ok := e.Registry().Lookup("IFoo")
	require.True(t, ok)
	assert.Equal(t, ir.Handle(1000), inst.Handle)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown root", func(t *testing.T) {
		_, err := New(ctx, testutil.Specs(), "IQux", testutil.NewFakeInvoker(), mutator.DefaultConfig())
		assert.ErrorIs(t, err, ErrUnknownRoot)
	})

	t.Run("invalid schema", func(t *testing.T) {
		specs := testutil.Specs()
		specs[0].Functions = append(specs[0].Functions, ir.FunctionSignature{
			Name: "broken",
			Args: []ir.TypeSpec{{Tag: ir.TagArray, Elem: &ir.TypeSpec{Tag: ir.TagScalar, Kind: ir.KindU8}}},
		})
		_, err := New(ctx, specs, "IFoo", testutil.NewFakeInvoker(), mutator.DefaultConfig())
		require.Error(t, err)
		assert.True(t, ir.IsInvariantError(err))
	})

	t.Run("interface without functions", func(t *testing.T) {
		specs := testutil.Specs()
		specs[2].Functions = nil
		_, err := New(ctx, specs, "IFoo", testutil.NewFakeInvoker(), mutator.DefaultConfig())

		var ie *ir.InvariantError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, ir.ErrCodeNoFunctions, ie.Code)
		assert.Equal(t, testutil.BazType, ie.TypeName)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := mutator.DefaultConfig()
		cfg.FunctionMutateOdds = mutator.Odds{}
		_, err := New(ctx, testutil.Specs(), "IFoo", testutil.NewFakeInvoker(), cfg)
		assert.Error(t, err)
	})

	t.Run("invalid exec size", func(t *testing.T) {
		_, err := New(ctx, testutil.Specs(), "IFoo", testutil.NewFakeInvoker(), mutator.DefaultConfig(), WithExecSize(0))
		assert.Error(t, err)
	})

	t.Run("root binding fails", func(t *testing.T) {
		inv := testutil.NewFakeInvoker().FailBinding(testutil.FooType, errors.New("no service"))
		_, err := New(ctx, testutil.Specs(), "IFoo", inv, mutator.DefaultConfig())
		assert.Error(t, err)
	})
}

func TestGenerateOrMutate_InvalidBufferGenerates(t *testing.T) {
	e := newTestEngine(t, testutil.NewFakeInvoker())

	for _, buf := range [][]byte{nil, {}, []byte("garbage"), []byte(`{"v":1,"valid":false,"calls":[]}`)} {
		spec, mode, err := e.GenerateOrMutate(buf)
		require.NoError(t, err)
		assert.Equal(t, ModeGenerate, mode)
		assert.Len(t, spec.Calls, 4)
	}
}

func TestGenerateOrMutate_UntouchedForcesGeneration(t *testing.T) {
	e := newTestEngine(t, testutil.NewFakeInvoker())
	require.True(t, e.Registry().UntouchedExists())

	valid := ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "doThing", ir.NewScalar(ir.KindI32, 1), ir.StringValue{Bytes: []byte("x")})}}
	buf, err := ir.Serialize(&valid)
	require.NoError(t, err)

	_, mode, err := e.GenerateOrMutate(buf)
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
}

func TestGenerateOrMutate_MutatesOnceAllTouched(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testutil.NewFakeInvoker())

	seed := ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "doThing", ir.NewScalar(ir.KindI32, 1), ir.StringValue{Bytes: []byte("x")})}}
	report, err := e.Execute(ctx, seed)
	require.NoError(t, err)
	require.False(t, e.Registry().UntouchedExists())

	spec, mode, err := e.GenerateOrMutate(report.Buffer)
	require.NoError(t, err)
	assert.Equal(t, ModeMutate, mode)
	require.Len(t, spec.Calls, 1)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Mutated)
	assert.Equal(t, 0, stats.Generated)
}

func TestGenerateOrMutate_UnvettedBufferGenerates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testutil.NewFakeInvoker())
	_, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}})
	require.NoError(t, err)

	bad := ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "doThing", ir.StringValue{}, ir.StringValue{})}}
	buf, err := ir.Serialize(&bad)
	require.NoError(t, err)

	_, mode, err := e.GenerateOrMutate(buf)
	require.NoError(t, err)
	assert.Equal(t, ModeGenerate, mode)
}

func TestExecute_DiscoversReturnedInterface(t *testing.T) {
	ctx := context.Background()
	inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}})
	require.NoError(t, err)

	assert.Equal(t, []string{"IBar"}, report.Discovered())
	assert.Equal(t, registry.StateTouched, e.Registry().State("IFoo"))
	assert.Equal(t, registry.StateUntouched, e.Registry().State("IBar"))
	assert.True(t, e.Registry().UntouchedExists())
	assert.Equal(t, testutil.Binding{TypeName: testutil.BarType, Handle: 7}, inv.Bindings[1])

	report, err = e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IBar", "ping", ir.NewScalar(ir.KindU8, 3))}})
	require.NoError(t, err)
	assert.Zero(t, report.Failures())
	assert.Equal(t, registry.StateTouched, e.Registry().State("IBar"))
	assert.False(t, e.Registry().UntouchedExists())

	bar, _ := e.Registry().Lookup("IBar")
	assert.Equal(t, bar.Handle, inv.Invocations[1].Handle)
}

func TestExecute_DiscoveryMidSequence(t *testing.T) {
	ctx := context.Background()
	inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{
		call("IFoo", "doThing", ir.NewScalar(ir.KindI32, 1), ir.StringValue{Bytes: []byte("a")}),
		call("IFoo", "getBar"),
		call("IFoo", "doThing", ir.NewScalar(ir.KindI32, 2), ir.StringValue{Bytes: []byte("b")}),
	}})
	require.NoError(t, err)

	require.Len(t, report.Calls, 3)
	assert.Zero(t, report.Failures())
	assert.Equal(t, []string{"IBar"}, report.Discovered())
	assert.True(t, e.Registry().UntouchedExists())
	assert.Equal(t, []string{"IBar"}, e.Registry().Untouched())
	assert.Equal(t, registry.StateTouched, e.Registry().State("IFoo"))
	assert.Equal(t, registry.StateUntouched, e.Registry().State("IBar"))
}

func TestExecute_RediscoveryIsNoop(t *testing.T) {
	ctx := context.Background()
	inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar"), call("IFoo", "getBar")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"IBar"}, report.Discovered())
	assert.Len(t, inv.Bindings, 2)
	assert.Equal(t, 2, e.Registry().Len())
}

func TestExecute_NestedReferences(t *testing.T) {
	ctx := context.Background()
	nested := ir.StructValue{Fields: []ir.NamedValue{
		{Name: "peers", Value: ir.VectorValue{Elems: []ir.Value{
			testutil.InterfaceRef(testutil.BarType, 7),
			ir.UnionValue{Selected: ir.NamedValue{Name: "baz", Value: testutil.InterfaceRef(testutil.BazType, 8)}},
		}}},
		{Name: "cb", Value: ir.Placeholder(ir.TagCallback, "IFooCallback")},
	}}
	inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", nested)
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"IBar", "IBaz"}, report.Discovered())
}

func TestExecute_SkipsUnknownAndUnbindableInterfaces(t *testing.T) {
	ctx := context.Background()
	inv := testutil.NewFakeInvoker().
		Returning("IFoo", "getBar",
			testutil.InterfaceRef("vendor.qux@2.0::IQux", 5),
			testutil.InterfaceRef(testutil.BazType, 6),
		).
		FailBinding(testutil.BazType, errors.New("dead object"))
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}})
	require.NoError(t, err)
	assert.Empty(t, report.Discovered())
	assert.Equal(t, registry.StateUnregistered, e.Registry().State("IQux"))
	assert.Equal(t, registry.StateUnregistered, e.Registry().State("IBaz"))
}

func TestExecute_FailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("transaction failed")
	inv := testutil.NewFakeInvoker().
		Failing("IFoo", "doThing", boom).
		Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
	e := newTestEngine(t, inv)

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{
		call("IFoo", "doThing", ir.NewScalar(ir.KindI32, 1), ir.StringValue{}),
		call("IBaz", "noop"),
		call("IFoo", "fly"),
		call("IFoo", "getBar"),
	}})
	require.NoError(t, err)
	require.Len(t, report.Calls, 4)
	assert.Equal(t, 3, report.Failures())
	assert.Equal(t, []string{"IBar"}, report.Discovered())

	assert.ErrorIs(t, report.Calls[0].Err, boom)
	assert.True(t, IsRuntimeCode(report.Calls[0].Err, ErrCodeInvokeFailed))
	assert.True(t, IsRuntimeCode(report.Calls[1].Err, ErrCodeUnknownInstance))
	assert.True(t, IsRuntimeCode(report.Calls[2].Err, ErrCodeUnknownFunction))

	var ce *CallError
	require.True(t, errors.As(report.Calls[1].Err, &ce))
	assert.Equal(t, 1, ce.Index)

	assert.Equal(t, 0, inv.CallCount("IBaz", "noop"), "unregistered instance must not be invoked")
	assert.Equal(t, uint64(1), e.Registry().TouchCount(ir.CallKey{Instance: "IFoo", Function: "doThing"}))
	assert.Equal(t, uint64(0), e.Registry().TouchCount(ir.CallKey{Instance: "IBaz", Function: "noop"}))

	stats := e.Stats()
	assert.Equal(t, uint64(4), stats.Calls)
	assert.Equal(t, uint64(3), stats.Failures)
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(t, testutil.NewFakeInvoker())
	cancel()

	report, err := e.Execute(ctx, ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Calls)
}

func TestExecute_ReportIDIsContentHash(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testutil.NewFakeInvoker())
	spec := ir.ExecutionSpec{Calls: []ir.CallSpec{call("IFoo", "getBar")}}

	r1, err := e.Execute(ctx, spec)
	require.NoError(t, err)
	r2, err := e.Execute(ctx, spec)
	require.NoError(t, err)

	want, err := ir.ExecutionID(spec)
	require.NoError(t, err)
	assert.Equal(t, want, r1.ID)
	assert.Equal(t, r1.ID, r2.ID)
	assert.Greater(t, r2.Seq, r1.Seq)

	decoded, ok := ir.Deserialize(r1.Buffer)
	require.True(t, ok)
	assert.Equal(t, "getBar", decoded.Calls[0].Function)
}

// Every registered instance is exercised before any mutate-mode sequence
// is produced, and newly discovered instances pull the engine back into
// generation until they are touched.
func TestStep_BreadthBeforeDepth(t *testing.T) {
	ctx := context.Background()
	inv := testutil.NewFakeInvoker().
		Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7)).
		Returning("IBar", "getBaz", testutil.InterfaceRef(testutil.BazType, 8))
	e := newTestEngine(t, inv, WithExecSize(8))

	var buf []byte
	sawMutate := false
	for i := 0; i < 200; i++ {
		untouched := e.Registry().UntouchedExists()
		report, err := e.Step(ctx, buf)
		require.NoError(t, err)
		if untouched {
			require.Equal(t, ModeGenerate, report.Mode, "step %d mutated while %v untouched", i, e.Registry().Untouched())
		}
		if report.Mode == ModeMutate {
			sawMutate = true
		}
		buf = report.Buffer
	}

	for _, name := range []string{"IFoo", "IBar", "IBaz"} {
		assert.Equal(t, registry.StateTouched, e.Registry().State(name), name)
	}
	assert.True(t, sawMutate)
}

func TestStep_Deterministic(t *testing.T) {
	run := func() []string {
		inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
		e, err := New(context.Background(), testutil.Specs(), "IFoo", inv, mutator.DefaultConfig(),
			WithRand(rand.New(rand.NewPCG(9, 9))),
			WithRunIDGenerator(testutil.NewFixedRunIDGenerator("")),
		)
		require.NoError(t, err)

		var ids []string
		var buf []byte
		for i := 0; i < 20; i++ {
			report, err := e.Step(context.Background(), buf)
			require.NoError(t, err)
			ids = append(ids, report.ID)
			buf = report.Buffer
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestStep_PersistsRun(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
	e := newTestEngine(t, inv, WithStore(s))

	var buf []byte
	for i := 0; i < 10; i++ {
		report, err := e.Step(ctx, buf)
		require.NoError(t, err)
		buf = report.Buffer
	}

	run, err := s.ReadRun(ctx, "run-test")
	require.NoError(t, err)
	assert.Equal(t, testutil.FooType, run.Root)
	assert.Equal(t, uint64(1), run.Seed)

	sum, err := s.Summarize(ctx, "run-test")
	require.NoError(t, err)
	stats := e.Stats()
	assert.Equal(t, stats.Calls, sum.Calls)
	assert.Equal(t, stats.Failures, sum.Failures)
	assert.LessOrEqual(t, sum.Executions, 10)
	assert.Equal(t, "IFoo", sum.Instances[0].Name)
	assert.Len(t, sum.Instances, e.Registry().Len())
}

func TestStep_SameSeedRunsShareStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	runIDs := []string{"run-a", "run-b"}
	for _, runID := range runIDs {
		inv := testutil.NewFakeInvoker().Returning("IFoo", "getBar", testutil.InterfaceRef(testutil.BarType, 7))
		e, err := New(ctx, testutil.Specs(), "IFoo", inv, mutator.DefaultConfig(),
			WithStore(s),
			WithSeed(42),
			WithRunIDGenerator(testutil.NewFixedRunIDGenerator(runID)),
		)
		require.NoError(t, err)

		var buf []byte
		for i := 0; i < 10; i++ {
			report, err := e.Step(ctx, buf)
			require.NoError(t, err)
			buf = report.Buffer
		}
	}

	corpusIDs := func(runID string) []string {
		corpus, err := s.ReadCorpus(ctx, runID)
		require.NoError(t, err)
		ids := make([]string, len(corpus))
		for i, e := range corpus {
			ids[i] = e.ID
		}
		return ids
	}
	a, b := corpusIDs("run-a"), corpusIDs("run-b")
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	sumA, err := s.Summarize(ctx, "run-a")
	require.NoError(t, err)
	sumB, err := s.Summarize(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, len(a), sumA.Executions)
	assert.Equal(t, sumA.Executions, sumB.Executions)
	assert.Equal(t, sumA.Calls, sumB.Calls)
}

func TestStep_ClockContinuesStoredRun(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	e := newTestEngine(t, testutil.NewFakeInvoker(), WithStore(s), WithClock(NewClockAt(100)))

	report, err := e.Step(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(102), report.Seq)

	insts, err := s.ReadInstances(ctx, "run-test")
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, int64(101), insts[0].Seq)
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testutil.NewFakeInvoker())

	_, err := e.Replay(ctx, []byte("nope"))
	assert.ErrorIs(t, err, ErrInvalidBuffer)

	spec := ir.ExecutionSpec{Calls: []ir.CallSpec{call("IBar", "ping", ir.NewScalar(ir.KindU8, 1))}}
	buf, err := ir.Serialize(&spec)
	require.NoError(t, err)

	report, err := e.Replay(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, ModeReplay, report.Mode)
	assert.Equal(t, 1, report.Failures())
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "generate", ModeGenerate.String())
	assert.Equal(t, "mutate", ModeMutate.String())
	assert.Equal(t, "replay", ModeReplay.String())
	assert.Equal(t, "Mode(9)", Mode(9).String())
}
