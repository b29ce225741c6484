// Package testutil provides fixtures shared by package tests: a small
// interface schema, a scriptable fake Invoker, and deterministic run IDs.
package testutil
