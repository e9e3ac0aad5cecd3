package network

import (
	"sort"

	"github.com/nvandessel/solirona/internal/waveform"
)

// Node is one entity of the resonance network. Relations are held as an id
// set; symmetry is maintained by Graph, never by callers.
type Node struct {
	ID        string
	Amplitude waveform.Amplitude
	Collapsed bool

	value     int
	relations map[string]struct{}
}

func newNode(id string, amp waveform.Amplitude) *Node {
	return &Node{
		ID:        id,
		Amplitude: amp,
		relations: make(map[string]struct{}),
	}
}

// Value returns the resolved basis index. ok is false while the node is
// uncollapsed.
func (n *Node) Value() (index int, ok bool) {
	if !n.Collapsed {
		return 0, false
	}
	return n.value, true
}

// Resolve marks the node collapsed at index k and replaces its amplitude with
// the basis vector at k. It is a no-op if the node is already collapsed or k
// is out of range.
func (n *Node) Resolve(k int) bool {
	if n.Collapsed {
		return false
	}
	basis := waveform.Basis(n.Amplitude.Len(), k)
	if basis == nil {
		return false
	}
	n.Collapsed = true
	n.value = k
	n.Amplitude = basis
	return true
}

// restore sets collapse state directly; used when loading a snapshot.
func (n *Node) restore(collapsed bool, value int) {
	n.Collapsed = collapsed
	n.value = value
}

// Neighbors returns the related ids in natural order.
func (n *Node) Neighbors() []string {
	ids := make([]string, 0, len(n.relations))
	for id := range n.relations {
		ids = append(ids, id)
	}
	sortNatural(ids)
	return ids
}

// Degree returns the number of relations.
func (n *Node) Degree() int { return len(n.relations) }

// RelatedTo reports whether the node has a relation to id.
func (n *Node) RelatedTo(id string) bool {
	_, ok := n.relations[id]
	return ok
}

func sortNatural(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return lessNatural(ids[i], ids[j]) })
}
