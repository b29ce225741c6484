package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ifuzz/internal/ir"
	"github.com/roach88/ifuzz/internal/registry"
)

type callCount struct {
	calls    uint64
	failures uint64
}

// counters are the engine's in-memory run totals.
type counters struct {
	executions int
	generated  int
	mutated    int
	calls      map[ir.CallKey]*callCount
}

func newCounters() counters {
	return counters{calls: make(map[ir.CallKey]*callCount)}
}

func (c *counters) record(key ir.CallKey, err error) {
	cc, ok := c.calls[key]
	if !ok {
		cc = &callCount{}
		c.calls[key] = cc
	}
	cc.calls++
	if err != nil {
		cc.failures++
	}
}

// FunctionStats are the counters of one (instance, function) pair.
type FunctionStats struct {
	Key      ir.CallKey `json:"key"`
	Calls    uint64     `json:"calls"`
	Failures uint64     `json:"failures"`
}

// InstanceStats describes one registered instance.
type InstanceStats struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
	State    string `json:"state"`
}

// Stats is a snapshot of a run's progress.
type Stats struct {
	RunID      string          `json:"run_id"`
	Executions int             `json:"executions"`
	Generated  int             `json:"generated"`
	Mutated    int             `json:"mutated"`
	Calls      uint64          `json:"calls"`
	Failures   uint64          `json:"failures"`
	Functions  []FunctionStats `json:"functions"`
	Instances  []InstanceStats `json:"instances"`
}

// Stats returns a snapshot of the run. Functions are sorted by call key and
// instances by name.
func (e *Engine) Stats() Stats {
	s := Stats{
		RunID:      e.runID,
		Executions: e.counters.executions,
		Generated:  e.counters.generated,
		Mutated:    e.counters.mutated,
		Functions:  make([]FunctionStats, 0, len(e.counters.calls)),
	}
	for key, cc := range e.counters.calls {
		s.Functions = append(s.Functions, FunctionStats{Key: key, Calls: cc.calls, Failures: cc.failures})
		s.Calls += cc.calls
		s.Failures += cc.failures
	}
	sort.Slice(s.Functions, func(i, j int) bool {
		return s.Functions[i].Key.String() < s.Functions[j].Key.String()
	})
	for _, inst := range e.reg.Instances() {
		s.Instances = append(s.Instances, InstanceStats{
			Name:     inst.Name,
			TypeName: inst.Spec.TypeName,
			State:    e.reg.State(inst.Name).String(),
		})
	}
	return s
}

// Touched counts instances in the touched state.
func (s Stats) Touched() int {
	n := 0
	for _, inst := range s.Instances {
		if inst.State == registry.StateTouched.String() {
			n++
		}
	}
	return n
}

// String renders the snapshot as a plain-text report.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", s.RunID)
	fmt.Fprintf(&b, "executions: %d (generated %d, mutated %d)\n", s.Executions, s.Generated, s.Mutated)
	fmt.Fprintf(&b, "calls: %d (failed %d)\n", s.Calls, s.Failures)
	fmt.Fprintf(&b, "instances: %d registered, %d touched\n", len(s.Instances), s.Touched())
	for _, inst := range s.Instances {
		fmt.Fprintf(&b, "  %-24s %-10s %s\n", inst.Name, inst.State, inst.TypeName)
	}
	if len(s.Functions) > 0 {
		b.WriteString("functions:\n")
		for _, f := range s.Functions {
			fmt.Fprintf(&b, "  %-32s %8d %8d\n", f.Key.String(), f.Calls, f.Failures)
		}
	}
	return b.String()
}
