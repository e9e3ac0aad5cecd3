package network

import (
	"fmt"
	"math"
)

// ValidationError describes a graph consistency issue.
type ValidationError struct {
	NodeID string `json:"node_id"`
	RefID  string `json:"ref_id,omitempty"` // The problematic reference
	Issue  string `json:"issue"`            // "dangling", "asymmetric", "self-reference", "norm", "value"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	if e.RefID == "" {
		return fmt.Sprintf("%s: %s", e.Issue, e.NodeID)
	}
	return fmt.Sprintf("%s: %s references %s", e.Issue, e.NodeID, e.RefID)
}

// normTolerance is the allowed deviation from unit norm.
const normTolerance = 1e-6

// Validate checks the graph invariants. Returns validation errors for:
//   - Dangling relations (references to ids not in the graph)
//   - Asymmetric relations (A relates to B but B not to A)
//   - Self relations
//   - Amplitudes whose norm is neither 1 nor 0 (the zero-norm guard case),
//     including NaN and infinite norms
//   - Collapsed entities whose value lies outside the amplitude range
func (g *Graph) Validate() []ValidationError {
	var errs []ValidationError

	for _, n := range g.Nodes() {
		for _, ref := range n.Neighbors() {
			switch {
			case ref == n.ID:
				errs = append(errs, ValidationError{NodeID: n.ID, RefID: ref, Issue: "self-reference"})
			case !g.Has(ref):
				errs = append(errs, ValidationError{NodeID: n.ID, RefID: ref, Issue: "dangling"})
			case !g.nodes[ref].RelatedTo(n.ID):
				errs = append(errs, ValidationError{NodeID: n.ID, RefID: ref, Issue: "asymmetric"})
			}
		}

		norm := n.Amplitude.Norm()
		if math.IsNaN(norm) || math.IsInf(norm, 0) || (norm != 0 && math.Abs(norm-1) > normTolerance) {
			errs = append(errs, ValidationError{NodeID: n.ID, Issue: "norm"})
		}

		if v, ok := n.Value(); ok && (v < 0 || v >= n.Amplitude.Len()) {
			errs = append(errs, ValidationError{NodeID: n.ID, Issue: "value"})
		}
	}

	return errs
}
