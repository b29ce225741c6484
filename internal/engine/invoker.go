package engine

import (
	"context"

	"github.com/roach88/ifuzz/internal/ir"
)

// Invoker executes calls against the system under test.
//
// The engine never inspects how a call is delivered. Opaque placeholder
// arguments (interfaces, callbacks, memory, handles, queues) must be built by
// the Invoker at call time.
type Invoker interface {
	// Invoke runs call on the instance identified by handle and returns its
	// result values.
	Invoke(ctx context.Context, call ir.CallSpec, handle ir.Handle) ([]ir.Value, error)

	// InstantiateFromHandle binds a reference returned by an earlier call
	// (or handle 0 for the root service) to a callable instance of typeName.
	InstantiateFromHandle(ctx context.Context, typeName string, handle ir.Handle) (ir.Handle, error)
}
