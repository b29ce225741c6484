package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ifuzz/internal/harness"
)

var scenariosDir = filepath.Join("testdata", "scenarios")

// scenarioDir writes scenario files pointing at the valid schemas into a
// temporary directory.
func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	schemas, err := filepath.Abs(validSchemas)
	require.NoError(t, err)

	dir := t.TempDir()
	for name, body := range files {
		content := fmt.Sprintf("name: %s\ndescription: d\nschemas: %s\nroot: IFoo\nseed: 5\niterations: 12\n%s",
			name, schemas, body)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0644))
	}
	return dir
}

func TestTestCommand_Passing(t *testing.T) {
	out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ foo_basic (20 executions")
	assert.Contains(t, out, "✓ foo_flaky")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_JSON(t *testing.T) {
	out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "json"}), scenariosDir, "--filter", "foo_basic")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "foo_basic", resp.Data.Scenarios[0].Name)
	assert.Equal(t, 20, resp.Data.Scenarios[0].Executions)
	assert.Positive(t, resp.Data.Scenarios[0].Corpus)
}

func TestTestCommand_FailingAssertion(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"too_small": "assertions:\n  - type: corpus_size\n    max: 0\n",
	})

	out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_UpdateThenMatchGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"snap": "assertions:\n  - type: deterministic\n",
	})
	goldenPath := harness.GoldenPath(filepath.Join(dir, "snap.yaml"))

	out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ snap (golden updated)")
	require.FileExists(t, goldenPath)

	out, err = executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ snap")

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	out, err = executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "Golden file mismatch")
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommand_Errors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "scenarios directory not found")
	})

	t.Run("bad filter", func(t *testing.T) {
		_, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir, "--filter", "[")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("no scenarios", func(t *testing.T) {
		out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, out, "No scenarios found.")
	})

	t.Run("no scenarios json", func(t *testing.T) {
		out, err := executeCommand(t, NewTestCommand(&RootOptions{Format: "json"}), scenariosDir, "--filter", "nothing*")
		require.NoError(t, err)
		var resp struct {
			Status string     `json:"status"`
			Data   TestResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 0, resp.Data.Total)
	})
}
