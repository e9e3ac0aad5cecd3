package scenario

import (
	"context"
	"math"
	"slices"
	"testing"

	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/nvandessel/solirona/internal/waveform"
)

const normTolerance = 1e-9

// AssertUnitNorms asserts that every entity has unit norm after every step.
func AssertUnitNorms(t *testing.T, result Result) {
	t.Helper()
	for _, sr := range result.Steps {
		for _, n := range sr.Snapshot.Nodes {
			norm := waveform.FromComponents(n.Waveform).Norm()
			if math.Abs(norm-1) > normTolerance {
				t.Errorf("AssertUnitNorms: step %d: entity %s norm %.12f", sr.Index, n.ID, norm)
			}
		}
	}
}

// AssertNoneCollapsed asserts that no entity is collapsed at any step.
func AssertNoneCollapsed(t *testing.T, result Result) {
	t.Helper()
	for _, sr := range result.Steps {
		if sr.Stats.Collapsed != 0 {
			t.Errorf("AssertNoneCollapsed: step %d: %d entities collapsed", sr.Index, sr.Stats.Collapsed)
		}
		if len(sr.Collapses) != 0 {
			t.Errorf("AssertNoneCollapsed: step %d: %d collapse events", sr.Index, len(sr.Collapses))
		}
	}
}

// AssertCollapsedTo asserts that entity id is collapsed with the given value
// in every step from afterStep on.
func AssertCollapsedTo(t *testing.T, result Result, id string, value, afterStep int) {
	t.Helper()
	for i := afterStep; i < len(result.Steps); i++ {
		n := result.Steps[i].Snapshot.Node(id)
		if n == nil {
			t.Errorf("AssertCollapsedTo: step %d: entity %s not found", i, id)
			continue
		}
		if !n.Collapsed || n.Value == nil || *n.Value != value {
			t.Errorf("AssertCollapsedTo: step %d: entity %s collapsed=%v value=%v, want %d", i, id, n.Collapsed, n.Value, value)
		}
	}
}

// AssertPopulation asserts the entity count after a step.
func AssertPopulation(t *testing.T, result Result, step, want int) {
	t.Helper()
	if step >= len(result.Steps) {
		t.Fatalf("AssertPopulation: step %d out of range (%d steps)", step, len(result.Steps))
	}
	if got := len(result.Steps[step].Snapshot.Nodes); got != want {
		t.Errorf("AssertPopulation: step %d: population %d, want %d", step, got, want)
	}
}

// AssertIDs asserts the exact entity ids, in order, after a step.
func AssertIDs(t *testing.T, result Result, step int, want ...string) {
	t.Helper()
	got := make([]string, 0, len(result.Steps[step].Snapshot.Nodes))
	for _, n := range result.Steps[step].Snapshot.Nodes {
		got = append(got, n.ID)
	}
	if !slices.Equal(got, want) {
		t.Errorf("AssertIDs: step %d: ids %v, want %v", step, got, want)
	}
}

// AssertConsistent asserts that every relation is symmetric, points at an
// existing entity and never at itself, and that collapse flags agree with
// values, in every step.
func AssertConsistent(t *testing.T, result Result) {
	t.Helper()
	for _, sr := range result.Steps {
		assertSnapshotConsistent(t, sr.Index, sr.Snapshot)
	}
}

func assertSnapshotConsistent(t *testing.T, step int, snap simulation.Snapshot) {
	t.Helper()
	for _, n := range snap.Nodes {
		if n.Collapsed != (n.Value != nil) {
			t.Errorf("step %d: entity %s collapsed=%v but value=%v", step, n.ID, n.Collapsed, n.Value)
		}
		for _, ref := range n.Connections {
			if ref == n.ID {
				t.Errorf("step %d: entity %s relates to itself", step, n.ID)
				continue
			}
			other := snap.Node(ref)
			if other == nil {
				t.Errorf("step %d: entity %s relates to missing %s", step, n.ID, ref)
				continue
			}
			if !slices.Contains(other.Connections, n.ID) {
				t.Errorf("step %d: relation %s-%s is not symmetric", step, n.ID, ref)
			}
		}
	}
}

// AssertTicks asserts that the tick counter advances by the requested ticks
// of each step.
func AssertTicks(t *testing.T, result Result, steps []Step) {
	t.Helper()
	tick := result.Initial.Tick
	for i, sr := range result.Steps {
		tick += uint64(steps[i].Ticks)
		if sr.Snapshot.Tick != tick {
			t.Errorf("AssertTicks: step %d: tick %d, want %d", i, sr.Snapshot.Tick, tick)
		}
	}
}

// AssertHistoryRecorded asserts that a recorded scenario stored one snapshot
// per step plus the initial one, and every collapse event.
func AssertHistoryRecorded(t *testing.T, result Result) {
	t.Helper()
	if result.Store == nil {
		t.Fatal("AssertHistoryRecorded: scenario was not recorded")
	}
	ctx := context.Background()

	sum, err := result.Store.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("AssertHistoryRecorded: GetRun: %v", err)
	}

	ticks := map[uint64]bool{result.Initial.Tick: true}
	collapses := 0
	for _, sr := range result.Steps {
		ticks[sr.Snapshot.Tick] = true
		collapses += len(sr.Collapses)
	}
	if sum.Snapshots != len(ticks) {
		t.Errorf("AssertHistoryRecorded: %d snapshots stored, want %d", sum.Snapshots, len(ticks))
	}
	if sum.Collapses != collapses {
		t.Errorf("AssertHistoryRecorded: %d collapses stored, want %d", sum.Collapses, collapses)
	}
	if sum.LatestTick != result.Final().Tick {
		t.Errorf("AssertHistoryRecorded: latest tick %d, want %d", sum.LatestTick, result.Final().Tick)
	}
}
