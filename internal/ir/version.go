package ir

// Version constants recorded alongside persisted pass runs.
const (
	// IRVersion is the version of the canonical encoding.
	IRVersion = "1"

	// PassVersion is the version of the dataflow pass pipeline.
	PassVersion = "0.1.0"
)
