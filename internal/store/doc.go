// Package store provides SQLite-backed durable storage for fuzzing runs.
//
// The store records:
//   - Runs: one row per engine instance (root interface, seed, versions)
//   - Executions: the corpus of serialized sequences, keyed by content hash
//   - Call stats: per (instance, function) call and failure counters
//   - Instances: every interface instance a run registered, in discovery order
//
// # Ordering
//
// Executions and instances carry the engine's logical seq. Queries order by
// seq (then id COLLATE BINARY), never by wall time, so listing a corpus is
// reproducible.
//
// # Corpus Deduplication
//
// An execution's ID is ir.ExecutionID of its calls. A sequence that is
// produced twice is stored once; the first writer wins.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
