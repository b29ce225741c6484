// Package registry tracks the interface instances known to a fuzzing run.
//
// An instance name moves through three states:
//
//	unregistered -> registered-untouched -> registered-touched
//
// Registration happens once for the seeded root and afterwards only when a
// call returns a live reference to a new interface type. Touching happens
// when a call against the instance has executed. Neither transition is ever
// reversed: instances are never unregistered and never un-touched.
//
// Registry is owned by a single engine and is not safe for concurrent use.
package registry

import (
	"sort"
	"strings"

	"github.com/roach88/ifuzz/internal/ir"
)

// State is the discovery state of an instance name.
type State int

const (
	StateUnregistered State = iota
	StateUntouched
	StateTouched
)

func (s State) String() string {
	switch s {
	case StateUntouched:
		return "untouched"
	case StateTouched:
		return "touched"
	default:
		return "unregistered"
	}
}

// Instance is a registered interface instance.
type Instance struct {
	Name   string
	Spec   *ir.InterfaceSpec
	Handle ir.Handle
}

// Registry holds the known instances and per-function touch counts.
type Registry struct {
	specs     map[string]*ir.InterfaceSpec // keyed by short type name
	instances map[string]Instance
	touches   map[ir.CallKey]uint64
	touched   map[string]struct{}
}

// New creates an empty registry that can register instances of the given
// interface types. The specs are copied.
func New(specs []ir.InterfaceSpec) *Registry {
	r := &Registry{
		specs:     make(map[string]*ir.InterfaceSpec, len(specs)),
		instances: make(map[string]Instance),
		touches:   make(map[ir.CallKey]uint64),
		touched:   make(map[string]struct{}),
	}
	for i := range specs {
		spec := specs[i]
		r.specs[ShortName(spec.TypeName)] = &spec
	}
	return r
}

// ShortName strips package qualifiers and version suffixes from an
// interface type name: "android.hardware.foo@1.0::IFoo" becomes "IFoo".
func ShortName(typeName string) string {
	name := typeName
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// InterfaceSpec returns the spec for an interface type, by full or short name.
func (r *Registry) InterfaceSpec(typeName string) (*ir.InterfaceSpec, bool) {
	spec, ok := r.specs[ShortName(typeName)]
	return spec, ok
}

// Register adds an instance in the untouched state. Registering a name that
// is already present is a no-op and returns false.
func (r *Registry) Register(name string, spec *ir.InterfaceSpec, handle ir.Handle) bool {
	if _, exists := r.instances[name]; exists {
		return false
	}
	r.instances[name] = Instance{Name: name, Spec: spec, Handle: handle}
	return true
}

// Lookup returns the instance registered under name.
func (r *Registry) Lookup(name string) (Instance, bool) {
	inst, ok := r.instances[name]
	return inst, ok
}

// Instances returns every registered instance, sorted by name so that a
// seeded random choice over the slice is reproducible.
func (r *Registry) Instances() []Instance {
	out := make([]Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.instances)
}

// State reports the discovery state of name.
func (r *Registry) State(name string) State {
	if _, ok := r.instances[name]; !ok {
		return StateUnregistered
	}
	if _, ok := r.touched[name]; ok {
		return StateTouched
	}
	return StateUntouched
}

// Touch records that a call executed. It increments the function's counter
// and moves a registered instance to the touched state.
func (r *Registry) Touch(key ir.CallKey) {
	r.touches[key]++
	if _, ok := r.instances[key.Instance]; ok {
		r.touched[key.Instance] = struct{}{}
	}
}

// TouchCount returns how many times a function has been called.
func (r *Registry) TouchCount(key ir.CallKey) uint64 {
	return r.touches[key]
}

// TouchCounts returns a copy of all per-function counters.
func (r *Registry) TouchCounts() map[ir.CallKey]uint64 {
	out := make(map[ir.CallKey]uint64, len(r.touches))
	for k, v := range r.touches {
		out[k] = v
	}
	return out
}

// TouchedInstances returns the touched instance names, sorted.
func (r *Registry) TouchedInstances() []string {
	out := make([]string, 0, len(r.touched))
	for name := range r.touched {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Untouched returns the registered but untouched instance names, sorted.
func (r *Registry) Untouched() []string {
	var out []string
	for name := range r.instances {
		if _, ok := r.touched[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// UntouchedExists reports whether any registered instance is still untouched.
func (r *Registry) UntouchedExists() bool {
	return len(r.instances) > len(r.touched)
}
