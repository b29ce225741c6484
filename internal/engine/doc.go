// Package engine implements the fuzzing orchestrator.
//
// The engine owns the interface registry and drives the loop an external
// fuzz driver sees:
//
//	buf -> GenerateOrMutate -> ExecutionSpec -> Execute -> Report
//
// # Generate or Mutate
//
// A buffer that does not decode to a valid, vetted ExecutionSpec is replaced
// with a freshly generated sequence. So is every buffer while some
// registered instance is still untouched: newly discovered interfaces are
// exercised once before the engine spends effort mutating old sequences.
//
// # Execute
//
// Calls run strictly in order on the calling goroutine. Each call:
//
//  1. resolves its instance in the registry
//  2. invokes the target through the Invoker
//  3. touches the (instance, function) counter
//  4. registers any new interface references in the results
//  5. updates statistics
//
// A failing call is recorded and the sequence continues. Only invariant
// violations (schema/engine mismatches) and store failures abort.
//
// All stored records are stamped with a logical seq from Clock.Next(),
// never wall time.
//
// The engine is not safe for concurrent use.
package engine
