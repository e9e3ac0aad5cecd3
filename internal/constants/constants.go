// Package constants provides named constants used throughout the solirona codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Network population defaults
const (
	// DefaultNodeCount is the number of entities created when an engine starts.
	DefaultNodeCount = 40

	// DefaultConnectProb is the Erdos-Renyi edge probability used for the
	// initial wiring and for reconnects that do not name a probability.
	DefaultConnectProb = 0.3

	// DefaultWaveformLength is the number of complex slots in every amplitude vector.
	DefaultWaveformLength = 128

	// NodeIDPrefix prefixes every generated entity identifier ("n0", "n1", ...).
	NodeIDPrefix = "n"
)

// Evolution defaults
const (
	// DefaultInterferenceGain scales each neighbor's amplitude before it is
	// accumulated into an entity during resonance propagation.
	DefaultInterferenceGain = 0.5

	// MaxInterferenceGain bounds the magnitude of the interference gain. With
	// unit-norm neighbors and MaxPopulation entities, one propagation step
	// stays far inside the float64 range.
	MaxInterferenceGain = 1e6

	// DefaultCollapseChance is the per-round probability that an uncollapsed
	// entity is measured.
	DefaultCollapseChance = 0.05

	// DefaultTickInterval is the wall-clock cadence of the automatic driver.
	DefaultTickInterval = 200 * time.Millisecond

	// MaxTicksPerCommand bounds a single step request from a client.
	MaxTicksPerCommand = 10000

	// MaxPopulation bounds setPopulation requests from a client.
	MaxPopulation = 5000
)

// Transport defaults
const (
	// DefaultAddr is the listen address of the HTTP/WebSocket server.
	DefaultAddr = "localhost:5000"

	// DefaultCommandRate is the sustained command rate per client and action (per second).
	DefaultCommandRate = 20.0

	// DefaultCommandBurst is the burst size per client and action.
	DefaultCommandBurst = 40
)

// Storage defaults
const (
	// DefaultSnapshotEvery is the number of ticks between recorded snapshots.
	DefaultSnapshotEvery = 25

	// DataDirName is the directory under $HOME holding config, database and event log.
	DataDirName = ".solirona"

	// DatabaseFileName is the SQLite history database inside the data directory.
	DatabaseFileName = "solirona.db"
)
