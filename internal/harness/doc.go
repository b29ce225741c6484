// Package harness runs fuzz scenarios: short seeded sessions of the engine
// against the loopback invoker, checked by assertions and golden snapshots.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: foo_reaches_bar
//	description: "getBar hands out an IBar that gets exercised"
//	schemas: ../schemas        # relative to the scenario file
//	root: IFoo
//	seed: 7
//	iterations: 40
//	exec_size: 8               # optional, engine default otherwise
//	failure_odds: "1:9"        # optional, loopback never fails otherwise
//	assertions:
//	  - type: discovered
//	    instances: [IFoo, IBar]
//	  - type: touched
//	    instances: [IBar]
//	  - type: call_count
//	    call: IFoo.getBar
//	    min: 1
//	  - type: sequence_contains
//	    call: IBar.ping
//	  - type: deterministic
//
// # Assertion Types
//
//   - discovered: every listed instance was registered during the session
//   - touched: every listed instance had at least one call executed
//   - call_count: the stored counter of one function lies within [min, max]
//   - failures: total failed calls lie within [min, max]
//   - corpus_size: the number of distinct stored sequences lies within [min, max]
//   - sequence_contains: some stored sequence calls the named function
//   - deterministic: a second session with the same seed stores the same corpus
//
// # Deterministic Testing
//
// Each session runs against a fresh in-memory SQLite store with the run ID
// fixed to the scenario name, so two sessions of one scenario produce
// byte-identical snapshots.
package harness
