package ir

// Version constants for the wire format and engine.
const (
	// WireVersion is the version of the execution buffer encoding.
	WireVersion = 1

	// EngineVersion is the fuzzing engine version.
	EngineVersion = "0.1.0"
)
