// Package network holds the resonance graph: an arena of entities keyed by
// id, with symmetric relations stored as id sets.
//
// Graph is not safe for concurrent use. The simulation engine owns a Graph
// and serializes every access behind its own lock.
package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/solirona/internal/waveform"
)

// Graph owns all entities by id.
type Graph struct {
	nodes map[string]*Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Len returns the population.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether id is present.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns the entity for id, or nil.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// IDs returns every id in natural order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortNatural(ids)
	return ids
}

// Nodes returns every entity in natural id order.
func (g *Graph) Nodes() []*Node {
	ids := g.IDs()
	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// AddNode inserts a new uncollapsed entity under id with the given amplitude.
func (g *Graph) AddNode(id string, amp waveform.Amplitude) (*Node, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty entity id", ErrInvalidParameter)
	}
	if amp.Len() == 0 {
		return nil, fmt.Errorf("%w: empty amplitude for %s", ErrInvalidParameter, id)
	}
	if _, exists := g.nodes[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentifier, id)
	}
	n := newNode(id, amp)
	g.nodes[id] = n
	return n, nil
}

// Restore inserts an entity with explicit collapse state. A collapsed entity
// must carry a value inside its amplitude's range.
func (g *Graph) Restore(id string, amp waveform.Amplitude, collapsed bool, value int) (*Node, error) {
	if collapsed && (value < 0 || value >= amp.Len()) {
		return nil, fmt.Errorf("%w: value %d out of range for %s", ErrInvalidParameter, value, id)
	}
	n, err := g.AddNode(id, amp)
	if err != nil {
		return nil, err
	}
	n.restore(collapsed, value)
	return n, nil
}

// RemoveNode deletes id and strips it from every relation set. It reports
// whether anything was removed.
func (g *Graph) RemoveNode(id string) bool {
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	for nb := range n.relations {
		if other := g.nodes[nb]; other != nil {
			delete(other.relations, id)
		}
	}
	delete(g.nodes, id)
	return true
}

// Connect adds a symmetric relation between a and b. Self relations and
// existing relations are no-ops.
func (g *Graph) Connect(a, b string) error {
	na, nb, err := g.pair(a, b)
	if err != nil {
		return err
	}
	if a == b {
		return nil
	}
	na.relations[b] = struct{}{}
	nb.relations[a] = struct{}{}
	return nil
}

// Disconnect removes the relation between a and b if present.
func (g *Graph) Disconnect(a, b string) error {
	na, nb, err := g.pair(a, b)
	if err != nil {
		return err
	}
	delete(na.relations, b)
	delete(nb.relations, a)
	return nil
}

// Connected reports whether a and b are related.
func (g *Graph) Connected(a, b string) bool {
	n := g.nodes[a]
	return n != nil && n.RelatedTo(b)
}

func (g *Graph) pair(a, b string) (*Node, *Node, error) {
	na, ok := g.nodes[a]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEntity, a)
	}
	nb, ok := g.nodes[b]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEntity, b)
	}
	return na, nb, nil
}

// ClearConnections drops every relation.
func (g *Graph) ClearConnections() {
	for _, n := range g.nodes {
		clear(n.relations)
	}
}

// RandomizeConnections rewires the whole graph: every relation is cleared,
// then each unordered pair of distinct entities is connected independently
// with probability p. p must lie in [0, 1]; otherwise the graph is untouched.
func (g *Graph) RandomizeConnections(p float64, rng *rand.Rand) error {
	if err := ValidateProbability("connect probability", p); err != nil {
		return err
	}
	g.ClearConnections()
	ids := g.IDs()
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if rng.Float64() < p {
				g.nodes[ids[i]].relations[ids[j]] = struct{}{}
				g.nodes[ids[j]].relations[ids[i]] = struct{}{}
			}
		}
	}
	return nil
}

// EdgeCount returns the number of undirected relations.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.relations)
	}
	return total / 2
}

// NextID derives the identifier for the next generated entity. It starts from
// the population size and never reuses an index at or below the highest
// generated id currently present.
func (g *Graph) NextID() string {
	k := len(g.nodes)
	for id := range g.nodes {
		if idx, ok := ParseIndex(id); ok && idx >= k {
			k = idx + 1
		}
	}
	for g.Has(FormatID(k)) {
		k++
	}
	return FormatID(k)
}

// Highest returns the last id in natural order.
func (g *Graph) Highest() (string, bool) {
	var best string
	found := false
	for id := range g.nodes {
		if !found || lessNatural(best, id) {
			best = id
			found = true
		}
	}
	return best, found
}

// ValidateProbability rejects values outside [0, 1] and NaN.
func ValidateProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %s must be in [0, 1], got %v", ErrInvalidParameter, name, p)
	}
	return nil
}
