package ir

// Version constants for the record schema and host.
const (
	// IRVersion is the record schema version.
	IRVersion = "1"

	// HostVersion is the setcode host version.
	HostVersion = "0.1.0"
)
