package scenario

import (
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/nvandessel/solirona/internal/waveform"
)

// Config returns a small deterministic engine configuration.
func Config(nodes int, connectProb, collapseChance float64) simulation.Config {
	return simulation.Config{
		NodeCount:        nodes,
		ConnectProb:      connectProb,
		WaveformLength:   8,
		InterferenceGain: 0.5,
		CollapseChance:   collapseChance,
		Seed:             42,
	}
}

// BasisEntity builds an entity whose amplitude is the k-th basis vector.
func BasisEntity(id string, k int) EntitySpec {
	return EntitySpec{ID: id, Basis: &k}
}

// amplitude resolves the entity's starting amplitude for a waveform length.
func (s EntitySpec) amplitude(length int) waveform.Amplitude {
	switch {
	case s.Basis != nil:
		return waveform.Basis(length, *s.Basis)
	case s.Amplitude != nil:
		return s.Amplitude
	}
	u := make(waveform.Amplitude, length)
	for i := range u {
		u[i] = 1
	}
	return u
}

// Chain builds edges a-b, b-c, ... over ids.
func Chain(ids ...string) []EdgeSpec {
	edges := make([]EdgeSpec, 0, len(ids))
	for i := 1; i < len(ids); i++ {
		edges = append(edges, EdgeSpec{A: ids[i-1], B: ids[i]})
	}
	return edges
}

// Ticks returns count steps of n ticks each.
func Ticks(count, n int) []Step {
	steps := make([]Step, count)
	for i := range steps {
		steps[i] = Step{Ticks: n}
	}
	return steps
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
