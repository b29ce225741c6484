// Package config loads fuzzing run settings from a YAML file, a .env file
// and IFUZZ_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ifuzz/internal/engine"
	"github.com/roach88/ifuzz/internal/mutator"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IFUZZ_"

// Config is the complete settings of a fuzzing run.
type Config struct {
	Mutator MutatorConfig `yaml:"mutator"`

	// ExecSize is the number of calls in a freshly generated sequence.
	ExecSize int `yaml:"exec_size"`

	// Iterations bounds the driver loop. Zero runs until interrupted.
	Iterations int `yaml:"iterations"`

	// Seed seeds the random source. Zero picks a random seed.
	Seed uint64 `yaml:"seed"`

	// RootInterface names the interface the run starts from.
	RootInterface string `yaml:"root_interface"`

	SchemaDir string `yaml:"schema_dir"`
	DB        string `yaml:"db"`
	LogLevel  string `yaml:"log_level"`
}

// MutatorConfig mirrors mutator.Config in file form.
type MutatorConfig struct {
	EnumBias           mutator.Odds `yaml:"enum_bias"`
	FunctionMutateOdds mutator.Odds `yaml:"function_mutate_odds"`
	VectorSize         int          `yaml:"vector_size"`
	StringSize         int          `yaml:"string_size"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	m := mutator.DefaultConfig()
	return Config{
		Mutator: MutatorConfig{
			EnumBias:           m.EnumBias,
			FunctionMutateOdds: m.FunctionMutateOdds,
			VectorSize:         m.DefaultVectorSize,
			StringSize:         m.DefaultStringSize,
		},
		ExecSize:  engine.DefaultExecSize,
		SchemaDir: "./schemas",
		DB:        "./ifuzz.db",
		LogLevel:  "info",
	}
}

// MutatorConfig builds the mutator's configuration.
func (c Config) MutatorConfig() mutator.Config {
	m := mutator.DefaultConfig()
	m.EnumBias = c.Mutator.EnumBias
	m.FunctionMutateOdds = c.Mutator.FunctionMutateOdds
	m.DefaultVectorSize = c.Mutator.VectorSize
	m.DefaultStringSize = c.Mutator.StringSize
	return m
}

// Load reads the YAML file at path (skipped when path is empty), then the
// .env file in the working directory if present, then IFUZZ_* variables.
// Fields absent from every source keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Reject unknown fields (catches typos like "exec-size:")
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	// A missing .env file is not an error.
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides cfg from IFUZZ_* variables. Odds are written "for:against".
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	odds := func(name string, dst *mutator.Odds) {
		if v, ok := lookup(EnvPrefix + name); ok {
			o, err := ParseOdds(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = o
		}
	}

	str("SCHEMA_DIR", &cfg.SchemaDir)
	str("DB", &cfg.DB)
	str("ROOT", &cfg.RootInterface)
	str("LOG_LEVEL", &cfg.LogLevel)
	num("EXEC_SIZE", &cfg.ExecSize)
	num("ITERATIONS", &cfg.Iterations)
	num("VECTOR_SIZE", &cfg.Mutator.VectorSize)
	num("STRING_SIZE", &cfg.Mutator.StringSize)
	odds("ENUM_BIAS", &cfg.Mutator.EnumBias)
	odds("FUNCTION_MUTATE_ODDS", &cfg.Mutator.FunctionMutateOdds)

	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			cfg.Seed = seed
		}
	}

	return errors.Join(errs...)
}

// ParseOdds parses "for:against", e.g. "100:1".
func ParseOdds(s string) (mutator.Odds, error) {
	forStr, againstStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return mutator.Odds{}, fmt.Errorf("odds %q: expected for:against", s)
	}
	f, err := strconv.ParseUint(forStr, 10, 64)
	if err != nil {
		return mutator.Odds{}, fmt.Errorf("odds %q: %w", s, err)
	}
	a, err := strconv.ParseUint(againstStr, 10, 64)
	if err != nil {
		return mutator.Odds{}, fmt.Errorf("odds %q: %w", s, err)
	}
	odds := mutator.Odds{For: f, Against: a}
	if odds.For > math.MaxUint64-odds.Against {
		return mutator.Odds{}, fmt.Errorf("odds %q: sum overflows 64 bits", s)
	}
	return odds, nil
}

// Validate returns every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if err := c.MutatorConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ExecSize <= 0 {
		errs = append(errs, fmt.Errorf("exec_size %d: must be positive", c.ExecSize))
	}
	if c.Iterations < 0 {
		errs = append(errs, fmt.Errorf("iterations %d: must not be negative", c.Iterations))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: expected debug, info, warn or error", c.LogLevel))
	}
	return errors.Join(errs...)
}
