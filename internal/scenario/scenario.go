package scenario

import (
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/nvandessel/solirona/internal/store"
	"github.com/nvandessel/solirona/internal/waveform"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name   string
	Config simulation.Config

	// Entities, when non-empty, are inserted after the generated population.
	// Set Config.NodeCount to 0 for a fully hand-built graph.
	Entities []EntitySpec
	Edges    []EdgeSpec
	Steps    []Step

	// Record persists every step snapshot and collapse to the runner's
	// SQLite history store.
	Record bool
}

// EntitySpec defines a pre-seeded entity. When Basis is set the amplitude is
// that basis vector; otherwise Amplitude is used, defaulting to the uniform
// superposition when nil.
type EntitySpec struct {
	ID        string
	Basis     *int
	Amplitude waveform.Amplitude
}

// EdgeSpec defines a pre-seeded relation.
type EdgeSpec struct {
	A, B string
}

// Step is one unit of a scenario: an optional mutation followed by ticks.
type Step struct {
	// Label is an optional human-readable tag for failure output.
	Label string

	// Apply, when non-nil, runs before the ticks.
	Apply func(e *simulation.Engine) error

	Ticks int
}

// StepResult captures the engine after a single step.
type StepResult struct {
	Index     int
	Label     string
	Snapshot  simulation.Snapshot
	Stats     simulation.Stats
	Collapses []simulation.Collapse
}

// Result captures all steps and the final engine.
type Result struct {
	Initial simulation.Snapshot
	Steps   []StepResult
	Engine  *simulation.Engine

	// RunID and Store are set when the scenario was recorded.
	RunID string
	Store *store.SQLiteHistoryStore
}

// Final returns the snapshot after the last step, or the initial snapshot
// when there were no steps.
func (r Result) Final() simulation.Snapshot {
	if len(r.Steps) == 0 {
		return r.Initial
	}
	return r.Steps[len(r.Steps)-1].Snapshot
}
