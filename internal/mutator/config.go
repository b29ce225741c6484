// Package mutator generates and mutates values and call sequences against
// the ir type model.
//
// Generation and mutation are recursive over the TypeSpec/Value shapes and
// are driven by a Config of statistical biases. All randomness comes from a
// caller-supplied *rand.Rand, so a fixed seed reproduces a run exactly.
package mutator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Odds is an unnormalized (For, Against) weight pair biasing a binary choice.
type Odds struct {
	For     uint64 `yaml:"for"`
	Against uint64 `yaml:"against"`
}

// Total returns For+Against. It wraps for odds that fail Validate.
func (o Odds) Total() uint64 {
	return o.For + o.Against
}

// Validate reports odds that cannot be drawn from: both weights zero, or a
// sum that does not fit in 64 bits.
func (o Odds) Validate() error {
	if o.For > math.MaxUint64-o.Against {
		return fmt.Errorf("odds %s: sum overflows 64 bits", o)
	}
	if o.Total() == 0 {
		return fmt.Errorf("odds %s: must not both be zero", o)
	}
	return nil
}

// Hit draws r uniformly in [0, For+Against) and reports r < For.
func (o Odds) Hit(rng *rand.Rand) bool {
	return rng.Uint64N(o.Total()) < o.For
}

func (o Odds) String() string {
	return fmt.Sprintf("%d:%d", o.For, o.Against)
}

// ScalarBias draws the raw 64 bits a scalar is generated from.
type ScalarBias func(rng *rand.Rand) uint64

// ScalarSentinel is the all-ones value the default bias occasionally emits.
const ScalarSentinel = ^uint64(0)

// DefaultScalarBias favors small magnitudes: 30% each in [0,10), [0,100)
// and [0,1000), 1% the all-ones sentinel, and the remaining 9% a uniform
// 64-bit draw.
func DefaultScalarBias(rng *rand.Rand) uint64 {
	switch d := rng.IntN(100); {
	case d < 30:
		return rng.Uint64N(10)
	case d < 60:
		return rng.Uint64N(100)
	case d < 90:
		return rng.Uint64N(1000)
	case d == 90:
		return ScalarSentinel
	default:
		return rng.Uint64()
	}
}

// Defaults for Config.
const (
	DefaultVectorSize = 64
	DefaultStringSize = 16
)

// Config parameterizes generation and mutation.
type Config struct {
	// ScalarBias draws scalar bits. Nil means DefaultScalarBias.
	ScalarBias ScalarBias

	// EnumBias decides between a declared enumerator (Against) and an
	// arbitrary backing-kind scalar (For), which may be out of range.
	EnumBias Odds

	// FunctionMutateOdds decides between mutating one argument of an
	// existing call (For) and replacing a whole call (Against).
	FunctionMutateOdds Odds

	DefaultVectorSize int
	DefaultStringSize int
}

// DefaultConfig returns the configuration observed to work well in
// practice: enumerators almost always legal, mutation strongly favored
// over call replacement.
func DefaultConfig() Config {
	return Config{
		ScalarBias:         DefaultScalarBias,
		EnumBias:           Odds{For: 0, Against: 1},
		FunctionMutateOdds: Odds{For: 100, Against: 1},
		DefaultVectorSize:  DefaultVectorSize,
		DefaultStringSize:  DefaultStringSize,
	}
}

// Validate checks that every odds pair can be drawn from and sizes are sane.
func (c Config) Validate() error {
	var errs []error
	if err := c.EnumBias.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("enum bias: %w", err))
	}
	if err := c.FunctionMutateOdds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("function mutate: %w", err))
	}
	if c.DefaultVectorSize < 0 {
		errs = append(errs, fmt.Errorf("vector size %d: must not be negative", c.DefaultVectorSize))
	}
	if c.DefaultStringSize < 0 {
		errs = append(errs, fmt.Errorf("string size %d: must not be negative", c.DefaultStringSize))
	}
	return errors.Join(errs...)
}
