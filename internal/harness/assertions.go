package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/ifuzz/internal/store"
)

// maxCorpusContext bounds the sequences listed in an AssertionError.
const maxCorpusContext = 5

// AssertionContext provides what assertions need beyond the Result.
type AssertionContext struct {
	Ctx   context.Context
	Store *store.Store
	RunID string

	// Rerun runs a second session of the same scenario.
	Rerun func() ([]CorpusEntry, error)
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Corpus   []CorpusEntry // context for debugging
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Corpus) > 0 {
		fmt.Fprintf(&buf, "\nCorpus (%d sequences):\n", len(e.Corpus))
		for _, entry := range e.Corpus[:min(len(e.Corpus), maxCorpusContext)] {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", entry.Seq, entry.Mode, strings.Join(entry.Calls, "; "))
		}
		if len(e.Corpus) > maxCorpusContext {
			fmt.Fprintf(&buf, "  ... %d more\n", len(e.Corpus)-maxCorpusContext)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertDiscovered:
		return assertDiscovered(actx, a)
	case AssertTouched:
		return assertTouched(result, a)
	case AssertCallCount:
		return assertCallCount(actx, a)
	case AssertFailures:
		return assertBounds(AssertFailures, "failed calls", int(result.Stats.Failures), a)
	case AssertCorpusSize:
		return assertBounds(AssertCorpusSize, "stored sequences", len(result.Corpus), a)
	case AssertSequenceContains:
		return assertSequenceContains(result, a)
	case AssertDeterministic:
		return assertDeterministic(result, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertDiscovered checks the instances recorded in the store.
func assertDiscovered(actx *AssertionContext, a Assertion) error {
	instances, err := actx.Store.ReadInstances(actx.Ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("read instances: %w", err)
	}
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name
	}
	for _, want := range a.Instances {
		if !slices.Contains(names, want) {
			return &AssertionError{
				Type:     AssertDiscovered,
				Expected: fmt.Sprintf("instance %s registered", want),
				Actual:   fmt.Sprintf("registered: %v", names),
			}
		}
	}
	return nil
}

// assertTouched checks the final registry states in the engine stats.
func assertTouched(result *Result, a Assertion) error {
	states := make(map[string]string, len(result.Stats.Instances))
	for _, inst := range result.Stats.Instances {
		states[inst.Name] = inst.State
	}
	for _, want := range a.Instances {
		state, ok := states[want]
		if !ok {
			state = "unregistered"
		}
		if state != "touched" {
			return &AssertionError{
				Type:     AssertTouched,
				Expected: fmt.Sprintf("instance %s touched", want),
				Actual:   fmt.Sprintf("instance %s is %s", want, state),
				Corpus:   result.Corpus,
			}
		}
	}
	return nil
}

// assertCallCount checks the persisted counter of one function.
func assertCallCount(actx *AssertionContext, a Assertion) error {
	stats, err := actx.Store.ReadCallStats(actx.Ctx, actx.RunID)
	if err != nil {
		return fmt.Errorf("read call stats: %w", err)
	}
	calls := 0
	for _, st := range stats {
		if st.Key.String() == a.Call {
			calls = int(st.Calls)
		}
	}
	return assertBounds(AssertCallCount, "calls of "+a.Call, calls, a)
}

func assertBounds(kind, what string, n int, a Assertion) error {
	if (a.Min == nil || n >= *a.Min) && (a.Max == nil || n <= *a.Max) {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%s in %s", what, formatBounds(a.Min, a.Max)),
		Actual:   fmt.Sprintf("%d", n),
	}
}

func formatBounds(lo, hi *int) string {
	switch {
	case lo != nil && hi != nil:
		return fmt.Sprintf("[%d, %d]", *lo, *hi)
	case lo != nil:
		return fmt.Sprintf("[%d, ∞)", *lo)
	default:
		return fmt.Sprintf("[0, %d]", *hi)
	}
}

// assertSequenceContains checks that some stored sequence calls a.Call.
func assertSequenceContains(result *Result, a Assertion) error {
	prefix := a.Call + "("
	for _, entry := range result.Corpus {
		for _, c := range entry.Calls {
			if strings.HasPrefix(c, prefix) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertSequenceContains,
		Expected: fmt.Sprintf("a sequence calling %s", a.Call),
		Actual:   "not found in corpus",
		Corpus:   result.Corpus,
	}
}

// assertDeterministic reruns the scenario and compares corpus hashes.
func assertDeterministic(result *Result, actx *AssertionContext) error {
	again, err := actx.Rerun()
	if err != nil {
		return fmt.Errorf("rerun: %w", err)
	}
	first := result.CorpusIDs()
	second := make([]string, len(again))
	for i, e := range again {
		second[i] = e.ID
	}
	if slices.Equal(first, second) {
		return nil
	}

	diverged := 0
	for diverged < min(len(first), len(second)) && first[diverged] == second[diverged] {
		diverged++
	}
	return &AssertionError{
		Type:     AssertDeterministic,
		Expected: fmt.Sprintf("%d identical sequences on rerun", len(first)),
		Actual:   fmt.Sprintf("%d sequences, diverging at index %d", len(second), diverged),
	}
}
