package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ifuzz/internal/engine"
)

// Snapshot is the golden form of a scenario run.
type Snapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Seed         uint64        `json:"seed"`
	Stats        engine.Stats  `json:"stats"`
	Corpus       []CorpusEntry `json:"corpus"`
}

// MarshalSnapshot renders a result as indented JSON with a trailing
// newline. Stats and corpus are already in a fixed order, so equal runs
// produce equal bytes.
func MarshalSnapshot(scenario *Scenario, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Snapshot{
		ScenarioName: scenario.Name,
		Seed:         scenario.Seed,
		Stats:        result.Stats,
		Corpus:       result.Corpus,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, load SchemaLoader, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, load)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario, result, opts...)
}

// AssertGolden compares an existing result against its golden file. opts
// override the fixture directory and suffix.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenario.Name, data)
	return nil
}

// WriteGolden stores the snapshot of result at path, creating parent
// directories as needed.
func WriteGolden(path string, scenario *Scenario, result *Result) error {
	data, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchGolden reports whether the snapshot of result equals the file at path.
func MatchGolden(path string, scenario *Scenario, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read golden file: %w", err)
	}
	got, err := MarshalSnapshot(scenario, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}
