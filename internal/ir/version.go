package ir

// Version constants for the dispatch record schema and the executor.
const (
	// IRVersion is the dispatch record schema version.
	IRVersion = "1"

	// EngineVersion is the rclgo executor version.
	EngineVersion = "0.1.0"
)
