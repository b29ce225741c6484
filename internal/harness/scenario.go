package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ifuzz/internal/config"
)

// Scenario defines one seeded fuzz session and what must hold after it.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the run ID.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schemas is the CUE schema directory, relative to the scenario file.
	Schemas string `yaml:"schemas"`

	// Root names the root interface by full or short type name.
	Root string `yaml:"root"`

	// Seed drives both the engine and the loopback invoker.
	Seed uint64 `yaml:"seed"`

	// Iterations is the number of engine steps.
	Iterations int `yaml:"iterations"`

	// ExecSize overrides the engine's calls per generated sequence.
	ExecSize int `yaml:"exec_size,omitempty"`

	// FailureOdds makes loopback calls fail ("for:against").
	FailureOdds string `yaml:"failure_odds,omitempty"`

	// Assertions validate the finished session.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of a finished session.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Instances are instance names (discovered, touched).
	Instances []string `yaml:"instances,omitempty"`

	// Call is "Instance.function" (call_count, sequence_contains).
	Call string `yaml:"call,omitempty"`

	// Min and Max bound a count inclusively. Either may be omitted.
	Min *int `yaml:"min,omitempty"`
	Max *int `yaml:"max,omitempty"`
}

// Assertion type constants.
const (
	AssertDiscovered       = "discovered"
	AssertTouched          = "touched"
	AssertCallCount        = "call_count"
	AssertFailures         = "failures"
	AssertCorpusSize       = "corpus_size"
	AssertSequenceContains = "sequence_contains"
	AssertDeterministic    = "deterministic"
)

// LoadScenario reads and parses a scenario YAML file, resolving the schema
// directory relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file, resolving
// a relative schema directory against basePath.
//
// Unknown fields are rejected so typos like "assertion:" fail loudly.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schemas != "" && !filepath.IsAbs(scenario.Schemas) && basePath != "" {
		scenario.Schemas = filepath.Join(basePath, scenario.Schemas)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schemas == "" {
		return fmt.Errorf("schemas directory is required")
	}
	if s.Root == "" {
		return fmt.Errorf("root is required")
	}
	if s.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", s.Iterations)
	}
	if s.ExecSize < 0 {
		return fmt.Errorf("exec_size must not be negative, got %d", s.ExecSize)
	}
	if s.FailureOdds != "" {
		odds, err := config.ParseOdds(s.FailureOdds)
		if err == nil {
			err = odds.Validate()
		}
		if err != nil {
			return fmt.Errorf("failure_odds: %w", err)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if info, err := os.Stat(s.Schemas); err != nil || !info.IsDir() {
		return fmt.Errorf("schemas directory not found: %s", s.Schemas)
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDiscovered, AssertTouched:
		if len(a.Instances) == 0 {
			return fmt.Errorf("assertions[%d]: instances list is required for %s", index, a.Type)
		}
	case AssertCallCount:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for call_count", index)
		}
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for call_count", index)
		}
	case AssertFailures, AssertCorpusSize:
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for %s", index, a.Type)
		}
	case AssertSequenceContains:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for sequence_contains", index)
		}
	case AssertDeterministic:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Min != nil && *a.Min < 0 || a.Max != nil && *a.Max < 0 {
		return fmt.Errorf("assertions[%d]: bounds must be non-negative", index)
	}
	if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
		return fmt.Errorf("assertions[%d]: min %d exceeds max %d", index, *a.Min, *a.Max)
	}
	return nil
}
