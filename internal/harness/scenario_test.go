package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario creates a schemas directory next to a scenario file holding
// content and returns the scenario path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schemas"), 0755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: foo_reaches_bar
description: "IFoo hands out IBar"
schemas: schemas
root: IFoo
seed: 7
iterations: 25
exec_size: 6
failure_odds: "1:9"
assertions:
  - type: discovered
    instances: [IFoo, IBar]
  - type: call_count
    call: IFoo.getBar
    min: 1
  - type: deterministic
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "foo_reaches_bar", scenario.Name)
	assert.Equal(t, "IFoo hands out IBar", scenario.Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "schemas"), scenario.Schemas)
	assert.Equal(t, "IFoo", scenario.Root)
	assert.Equal(t, uint64(7), scenario.Seed)
	assert.Equal(t, 25, scenario.Iterations)
	assert.Equal(t, 6, scenario.ExecSize)
	assert.Equal(t, "1:9", scenario.FailureOdds)
	require.Len(t, scenario.Assertions, 3)
	assert.Equal(t, []string{"IFoo", "IBar"}, scenario.Assertions[0].Instances)
	assert.Equal(t, "IFoo.getBar", scenario.Assertions[1].Call)
	require.NotNil(t, scenario.Assertions[1].Min)
	assert.Equal(t, 1, *scenario.Assertions[1].Min)
	assert.Nil(t, scenario.Assertions[1].Max)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "shared"), 0755))

	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: s
description: d
schemas: shared
root: IFoo
iterations: 1
assertions:
  - type: deterministic
`), 0644))

	scenario, err := LoadScenarioWithBasePath(path, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "shared"), scenario.Schemas)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: s
description: d
schemas: schemas
root: IFoo
iterations: 1
assertion:
  - type: deterministic
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	const header = "description: d\nschemas: schemas\nroot: IFoo\n"

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: header + "iterations: 1\nassertions:\n  - type: deterministic\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: s\nschemas: schemas\nroot: IFoo\niterations: 1\nassertions:\n  - type: deterministic\n",
			wantErr: "description is required",
		},
		{
			name:    "missing schemas",
			content: "name: s\ndescription: d\nroot: IFoo\niterations: 1\nassertions:\n  - type: deterministic\n",
			wantErr: "schemas directory is required",
		},
		{
			name:    "missing root",
			content: "name: s\ndescription: d\nschemas: schemas\niterations: 1\nassertions:\n  - type: deterministic\n",
			wantErr: "root is required",
		},
		{
			name:    "zero iterations",
			content: "name: s\n" + header + "assertions:\n  - type: deterministic\n",
			wantErr: "iterations must be positive",
		},
		{
			name:    "negative exec size",
			content: "name: s\n" + header + "iterations: 1\nexec_size: -1\nassertions:\n  - type: deterministic\n",
			wantErr: "exec_size must not be negative",
		},
		{
			name:    "malformed odds",
			content: "name: s\n" + header + "iterations: 1\nfailure_odds: often\nassertions:\n  - type: deterministic\n",
			wantErr: "failure_odds",
		},
		{
			name:    "zero odds",
			content: "name: s\n" + header + "iterations: 1\nfailure_odds: \"0:0\"\nassertions:\n  - type: deterministic\n",
			wantErr: "must not both be zero",
		},
		{
			name:    "no assertions",
			content: "name: s\n" + header + "iterations: 1\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "schemas directory missing",
			content: "name: s\ndescription: d\nschemas: elsewhere\nroot: IFoo\niterations: 1\nassertions:\n  - type: deterministic\n",
			wantErr: "schemas directory not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	one, two := 1, 2
	neg := -1

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"unknown type", Assertion{Type: "trace_contains"}, "unknown assertion type"},
		{"discovered without instances", Assertion{Type: AssertDiscovered}, "instances list is required"},
		{"touched without instances", Assertion{Type: AssertTouched}, "instances list is required"},
		{"call count without call", Assertion{Type: AssertCallCount, Min: &one}, "call is required"},
		{"call count without bounds", Assertion{Type: AssertCallCount, Call: "IFoo.doThing"}, "min or max is required"},
		{"failures without bounds", Assertion{Type: AssertFailures}, "min or max is required"},
		{"corpus size without bounds", Assertion{Type: AssertCorpusSize}, "min or max is required"},
		{"sequence without call", Assertion{Type: AssertSequenceContains}, "call is required"},
		{"negative bound", Assertion{Type: AssertFailures, Max: &neg}, "non-negative"},
		{"inverted bounds", Assertion{Type: AssertCorpusSize, Min: &two, Max: &one}, "min 2 exceeds max 1"},
		{"valid bounds", Assertion{Type: AssertCorpusSize, Min: &one, Max: &two}, ""},
		{"valid deterministic", Assertion{Type: AssertDeterministic}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(3, &tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "assertions[3]")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
