// Package ir provides the type and value model for the interface fuzzer.
//
// This package contains the schema (TypeSpec, InterfaceSpec), the concrete
// value model (Value and its variants), the call/execution model, and the
// byte framing handed to an external fuzz driver. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is sealed: only the variants in value.go implement it, and every
//     dispatch over values is an exhaustive type switch.
//   - A Value's Tag always matches the Tag of the TypeSpec it was built from.
//   - Scalar payloads are stored as raw bits truncated to the kind's width,
//     never sign-extended.
//   - Schema/engine mismatches surface as *InvariantError, never as a silently
//     substituted value.
package ir
