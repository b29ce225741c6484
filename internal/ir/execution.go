package ir

// CallSpec is one function invocation with bound argument values.
type CallSpec struct {
	Instance string
	Function string
	Args     []Value
}

// Key returns the (instance, function) pair used for touch accounting.
func (c CallSpec) Key() CallKey {
	return CallKey{Instance: c.Instance, Function: c.Function}
}

// Clone returns a deep copy of the call.
func (c CallSpec) Clone() CallSpec {
	return CallSpec{Instance: c.Instance, Function: c.Function, Args: cloneElems(c.Args)}
}

// CallKey identifies a function on a specific interface instance.
type CallKey struct {
	Instance string
	Function string
}

func (k CallKey) String() string {
	return k.Instance + "." + k.Function
}

// ExecutionSpec is an ordered sequence of calls: the unit a fuzz driver
// stores and mutates.
//
// Valid is set only by Serialize. A buffer decoding to Valid=false was not
// produced by this engine and is discarded.
type ExecutionSpec struct {
	Calls []CallSpec
	Valid bool
}

// Equal reports whether two executions carry the same calls and marker.
func (s ExecutionSpec) Equal(o ExecutionSpec) bool {
	if s.Valid != o.Valid || len(s.Calls) != len(o.Calls) {
		return false
	}
	for i := range s.Calls {
		a, b := s.Calls[i], o.Calls[i]
		if a.Instance != b.Instance || a.Function != b.Function || !equalElems(a.Args, b.Args) {
			return false
		}
	}
	return true
}
