package simulation

import (
	"fmt"

	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/network"
	"github.com/nvandessel/solirona/internal/waveform"
)

// Snapshot is a complete, serializable copy of the engine's graph.
type Snapshot struct {
	Tick   uint64      `json:"tick"`
	Params Params      `json:"params"`
	Nodes  []NodeState `json:"nodes"`
}

// NodeState is one entity in a Snapshot. Value is nil while uncollapsed.
type NodeState struct {
	ID          string               `json:"id"`
	Waveform    []waveform.Component `json:"waveform"`
	Collapsed   bool                 `json:"collapsed"`
	Value       *int                 `json:"value"`
	Connections []string             `json:"connections"`
}

// Node returns the state for id, or nil.
func (s Snapshot) Node(id string) *NodeState {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// State returns a snapshot of every entity in natural id order. It takes the
// engine lock, so it never observes a partially applied operation.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() Snapshot {
	nodes := e.graph.Nodes()
	snap := Snapshot{
		Tick:   e.tick,
		Params: e.params,
		Nodes:  make([]NodeState, len(nodes)),
	}
	for i, n := range nodes {
		ns := NodeState{
			ID:          n.ID,
			Waveform:    n.Amplitude.Components(),
			Collapsed:   n.Collapsed,
			Connections: n.Neighbors(),
		}
		if v, ok := n.Value(); ok {
			ns.Value = &v
		}
		snap.Nodes[i] = ns
	}
	return snap
}

// Load replaces the graph, tick counter and parameters with the contents of
// snap. The snapshot is fully validated into a fresh graph before anything is
// swapped, so a rejected snapshot leaves the engine untouched.
func (e *Engine) Load(snap Snapshot) error {
	u := ParamUpdate{
		ConnectProb:      &snap.Params.ConnectProb,
		CollapseChance:   &snap.Params.CollapseChance,
		InterferenceGain: &snap.Params.InterferenceGain,
	}
	if err := u.Validate(); err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	g, length, err := buildGraph(snap)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	e.mu.Lock()
	e.graph = g
	e.tick = snap.Tick
	e.params = snap.Params
	if length > 0 {
		e.length = length
	}
	e.observeGraphLocked()
	e.mu.Unlock()

	e.logger.Info("snapshot loaded", "tick", snap.Tick, "nodes", len(snap.Nodes))
	e.events.Log(logging.Record{Kind: logging.KindLoad, Tick: snap.Tick, Fields: map[string]any{"nodes": len(snap.Nodes)}})
	e.notify(Event{Kind: EventLoad, Tick: snap.Tick})
	return nil
}

// buildGraph reconstructs a graph from snap. length is the amplitude length
// of the first entity, or 0 for an empty snapshot.
func buildGraph(snap Snapshot) (*network.Graph, int, error) {
	g := network.New()
	length := 0
	for _, ns := range snap.Nodes {
		amp := waveform.FromComponents(ns.Waveform)
		if ns.Collapsed != (ns.Value != nil) {
			return nil, 0, fmt.Errorf("%w: %s collapsed flag and value disagree", ErrInvalidParameter, ns.ID)
		}
		value := 0
		if ns.Value != nil {
			value = *ns.Value
		}
		if _, err := g.Restore(ns.ID, amp, ns.Collapsed, value); err != nil {
			return nil, 0, err
		}
		if length == 0 {
			length = amp.Len()
		}
	}
	for _, ns := range snap.Nodes {
		for _, nb := range ns.Connections {
			if err := g.Connect(ns.ID, nb); err != nil {
				return nil, 0, err
			}
		}
	}
	if errs := g.Validate(); len(errs) > 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidParameter, errs[0])
	}
	return g, length, nil
}

// Stats summarizes the engine for status displays.
type Stats struct {
	Tick             uint64  `json:"tick"`
	Population       int     `json:"population"`
	Collapsed        int     `json:"collapsed"`
	CollapsedPercent float64 `json:"collapsed_percent"`
	AvgMagnitude     float64 `json:"avg_magnitude"`
	Edges            int     `json:"edges"`
	Params           Params  `json:"params"`
	Running          bool    `json:"running"`
}

// Stats returns population and collapse counters. AvgMagnitude is the mean,
// over entities, of each entity's mean slot magnitude.
func (e *Engine) Stats() Stats {
	running := e.Running()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Tick:       e.tick,
		Population: e.graph.Len(),
		Edges:      e.graph.EdgeCount(),
		Params:     e.params,
		Running:    running,
	}
	sum := 0.0
	for _, n := range e.graph.Nodes() {
		if n.Collapsed {
			s.Collapsed++
		}
		sum += n.Amplitude.MeanMagnitude()
	}
	if s.Population > 0 {
		s.CollapsedPercent = 100 * float64(s.Collapsed) / float64(s.Population)
		s.AvgMagnitude = sum / float64(s.Population)
	}
	return s
}
