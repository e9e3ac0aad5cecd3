package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/network"
	"github.com/nvandessel/solirona/internal/waveform"
)

// Collapse records one entity resolving to a basis index.
type Collapse struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
	Tick  uint64 `json:"tick"`
}

// Tick runs count rounds under the engine lock. count must lie in
// [1, constants.MaxTicksPerCommand].
func (e *Engine) Tick(count int) error {
	_, err := e.Step(count)
	return err
}

// Step is Tick returning the collapses that occurred during its rounds.
func (e *Engine) Step(count int) ([]Collapse, error) {
	if count < 1 || count > constants.MaxTicksPerCommand {
		return nil, fmt.Errorf("%w: tick count must be in [1, %d], got %d",
			ErrInvalidParameter, constants.MaxTicksPerCommand, count)
	}

	start := time.Now()
	e.mu.Lock()
	var collapses []Collapse
	for i := 0; i < count; i++ {
		collapses = append(collapses, e.round()...)
	}
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeTicks(count, len(collapses), time.Since(start))
	for _, c := range collapses {
		e.events.Log(collapseRecord(c, false))
	}
	e.events.Log(logging.Record{Kind: logging.KindTick, Tick: tick,
		Fields: map[string]any{"rounds": count, "collapses": len(collapses)}})
	e.logger.Log(context.Background(), logging.LevelTrace, "tick",
		slog.Uint64("tick", tick), slog.Int("rounds", count), slog.Int("collapses", len(collapses)))

	e.notify(Event{Kind: EventTick, Tick: tick, Collapses: collapses})
	return collapses, nil
}

// round performs one propagation pass followed by one collapse pass. Entities
// are visited in natural id order and updated in place, so an entity sees the
// already-updated amplitudes of neighbors visited before it. Propagation
// applies to collapsed entities too. Caller holds e.mu.
func (e *Engine) round() []Collapse {
	e.tick++
	nodes := e.graph.Nodes()
	gain := e.params.InterferenceGain

	for _, n := range nodes {
		for _, id := range n.Neighbors() {
			n.Amplitude.AddScaled(gain, e.graph.Node(id).Amplitude)
		}
		n.Amplitude.Normalize()
		n.Amplitude.Rotate(waveform.RandomAngle(e.rng))
	}

	var out []Collapse
	for _, n := range nodes {
		if n.Collapsed {
			continue
		}
		if e.rng.Float64() < e.params.CollapseChance {
			if c, ok := e.collapseLocked(n); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// collapseLocked Born-samples n. It is a no-op on a collapsed entity or a
// degenerate amplitude. Caller holds e.mu.
func (e *Engine) collapseLocked(n *network.Node) (Collapse, bool) {
	if n.Collapsed {
		return Collapse{}, false
	}
	k, ok := n.Amplitude.Sample(e.rng)
	if !ok {
		e.logger.Debug("collapse skipped: degenerate amplitude", "node", n.ID)
		return Collapse{}, false
	}
	if !n.Resolve(k) {
		return Collapse{}, false
	}
	return Collapse{ID: n.ID, Value: k, Tick: e.tick}, true
}

// Collapse forces a Born-rule collapse of id outside the tick cycle. It
// returns the resolved value and whether this call performed the collapse;
// an already collapsed entity reports its existing value and false.
func (e *Engine) Collapse(id string) (int, bool, error) {
	e.mu.Lock()
	n := e.graph.Node(id)
	if n == nil {
		e.mu.Unlock()
		return 0, false, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if v, ok := n.Value(); ok {
		e.mu.Unlock()
		return v, false, nil
	}
	c, ok := e.collapseLocked(n)
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	if !ok {
		return 0, false, nil
	}
	e.metrics.observeCollapses(1)
	e.events.Log(collapseRecord(c, true))
	e.notify(Event{Kind: EventStructure, Tick: tick, Collapses: []Collapse{c}})
	return c.Value, true, nil
}

func collapseRecord(c Collapse, forced bool) logging.Record {
	r := logging.Record{Kind: logging.KindCollapse, Tick: c.Tick, Node: c.ID, Value: &c.Value}
	if forced {
		r.Fields = map[string]any{"forced": true}
	}
	return r
}

// RotatePhase applies a global phase rotation to one entity. A nil angle
// draws one uniformly from [0, pi).
func (e *Engine) RotatePhase(id string, angle *float64) error {
	if err := validateAngle(angle); err != nil {
		e.metrics.observeCommand("rotate", err)
		return err
	}

	e.mu.Lock()
	n := e.graph.Node(id)
	if n == nil {
		e.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrUnknownEntity, id)
		e.metrics.observeCommand("rotate", err)
		return err
	}
	n.Amplitude.Rotate(e.angle(angle))
	tick := e.tick
	e.mu.Unlock()

	e.metrics.observeCommand("rotate", nil)
	e.notify(Event{Kind: EventRotate, Tick: tick})
	return nil
}

// RotateAll rotates every entity. A nil angle draws a fresh random angle per
// entity.
func (e *Engine) RotateAll(angle *float64) error {
	if err := validateAngle(angle); err != nil {
		e.metrics.observeCommand("rotate", err)
		return err
	}

	e.mu.Lock()
	for _, n := range e.graph.Nodes() {
		n.Amplitude.Rotate(e.angle(angle))
	}
	tick := e.tick
	e.mu.Unlock()

	e.metrics.observeCommand("rotate", nil)
	e.notify(Event{Kind: EventRotate, Tick: tick})
	return nil
}

// angle resolves an optional angle. Caller holds e.mu.
func (e *Engine) angle(angle *float64) float64 {
	if angle != nil {
		return *angle
	}
	return waveform.RandomAngle(e.rng)
}

func validateAngle(angle *float64) error {
	if angle != nil && (math.IsNaN(*angle) || math.IsInf(*angle, 0)) {
		return fmt.Errorf("%w: angle must be finite, got %v", ErrInvalidParameter, *angle)
	}
	return nil
}
