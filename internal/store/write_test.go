package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifuzz/internal/ir"
)

func TestWriteRun_RoundTripsLargeSeed(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	run := Run{ID: "run-1", Root: "IFoo", Seed: ^uint64(0) - 1, EngineVersion: "0.1.0", WireVersion: 1}
	require.NoError(t, s.WriteRun(ctx, run))
	require.NoError(t, s.WriteRun(ctx, run), "duplicate run should be ignored")

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Seed, got.Seed)
	assert.Equal(t, "IFoo", got.Root)
	assert.NotEmpty(t, got.CreatedAt)
}

func TestWriteExecution_DeduplicatesByContentHash(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	exec := Execution{ID: "abc", RunID: "run-1", Seq: 1, Mode: "generate", Buffer: []byte(`{}`), Calls: 3, Failures: 1}
	fresh, err := s.WriteExecution(ctx, exec)
	require.NoError(t, err)
	assert.True(t, fresh)

	exec.Seq = 9
	fresh, err = s.WriteExecution(ctx, exec)
	require.NoError(t, err)
	assert.False(t, fresh)

	got, err := s.ReadExecution(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq, "first writer wins")
	assert.Equal(t, []byte(`{}`), got.Buffer)
}

func TestWriteExecution_CorpusIsPerRun(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestRun(t, s, "run-a")
	createTestRun(t, s, "run-b")

	for _, runID := range []string{"run-a", "run-b"} {
		for i, id := range []string{"abc", "def"} {
			fresh, err := s.WriteExecution(ctx, Execution{
				ID: id, RunID: runID, Seq: int64(i + 1), Mode: "generate", Buffer: []byte(id),
			})
			require.NoError(t, err)
			assert.True(t, fresh, "%s in %s", id, runID)
		}
	}

	for _, runID := range []string{"run-a", "run-b"} {
		corpus, err := s.ReadCorpus(ctx, runID)
		require.NoError(t, err)
		require.Len(t, corpus, 2, runID)
		assert.Equal(t, "abc", corpus[0].ID)
		assert.Equal(t, runID, corpus[1].RunID)

		sum, err := s.Summarize(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Executions, runID)
	}

	got, err := s.ReadExecution(ctx, "def")
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.RunID)
}

func TestWriteExecution_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	_, err := s.WriteExecution(context.Background(), Execution{ID: "x", RunID: "missing", Mode: "generate", Buffer: []byte{}})
	assert.Error(t, err)
}

func TestAddCallStats_Accumulates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	key := ir.CallKey{Instance: "IFoo", Function: "doThing"}
	require.NoError(t, s.AddCallStats(ctx, "run-1", CallStat{Key: key, Calls: 2, Failures: 1}))
	require.NoError(t, s.AddCallStats(ctx, "run-1", CallStat{Key: key, Calls: 3}))
	require.NoError(t, s.AddCallStats(ctx, "run-1", CallStat{Key: ir.CallKey{Instance: "IBar", Function: "ping"}, Calls: 1}))

	stats, err := s.ReadCallStats(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "IBar", stats[0].Key.Instance)
	assert.Equal(t, CallStat{Key: key, Calls: 5, Failures: 1}, stats[1])
}

func TestWriteInstance_FirstRegistrationWins(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	require.NoError(t, s.WriteInstance(ctx, "run-1", Instance{Name: "IFoo", TypeName: "a@1.0::IFoo", Handle: 0, Seq: 0}))
	require.NoError(t, s.WriteInstance(ctx, "run-1", Instance{Name: "IBar", TypeName: "a@1.0::IBar", Handle: 7, Seq: 3}))
	require.NoError(t, s.WriteInstance(ctx, "run-1", Instance{Name: "IBar", TypeName: "a@1.0::IBar", Handle: 8, Seq: 5}))

	insts, err := s.ReadInstances(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, "IFoo", insts[0].Name)
	assert.Equal(t, ir.Handle(7), insts[1].Handle)
}
