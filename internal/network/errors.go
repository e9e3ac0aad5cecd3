package network

import "errors"

// Sentinel errors for network operations. Numerically degenerate states are
// never reported through these; they are silent no-ops.
var (
	// ErrUnknownEntity indicates an operation referenced an id not present in the graph.
	ErrUnknownEntity = errors.New("network: unknown entity")

	// ErrInvalidParameter indicates an out-of-range or malformed argument.
	ErrInvalidParameter = errors.New("network: invalid parameter")

	// ErrDuplicateIdentifier indicates an insertion under an id that is already present.
	ErrDuplicateIdentifier = errors.New("network: duplicate identifier")
)
