package simulation

import (
	"fmt"

	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/network"
	"github.com/nvandessel/solirona/internal/waveform"
)

// AddEntity inserts one entity under a freshly derived id and attaches it to
// each existing entity with the current connect probability.
func (e *Engine) AddEntity() (string, error) {
	e.mu.Lock()
	if e.graph.Len() >= constants.MaxPopulation {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: population limit %d reached", ErrInvalidParameter, constants.MaxPopulation)
	}
	id, err := e.addGeneratedLocked()
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("add_entity", err)
	if err != nil {
		return "", err
	}
	e.events.Log(logging.Record{Kind: logging.KindAdd, Tick: tick, Node: id})
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return id, nil
}

// addGeneratedLocked adds one generated entity. Caller holds e.mu.
func (e *Engine) addGeneratedLocked() (string, error) {
	id := e.graph.NextID()
	if _, err := e.graph.AddNode(id, waveform.Random(e.length, e.rng)); err != nil {
		return "", err
	}
	e.attachLocked(id)
	return id, nil
}

// attachLocked connects id to every other entity independently with the
// current connect probability. Caller holds e.mu.
func (e *Engine) attachLocked(id string) {
	for _, other := range e.graph.IDs() {
		if other == id {
			continue
		}
		if e.rng.Float64() < e.params.ConnectProb {
			_ = e.graph.Connect(id, other)
		}
	}
}

// InsertEntity adds an entity under a caller-chosen id with the given
// amplitude, which is normalized on insertion. The new entity has no
// relations.
func (e *Engine) InsertEntity(id string, amp waveform.Amplitude) error {
	amp = amp.Clone()
	amp.Normalize()

	e.mu.Lock()
	_, err := e.graph.AddNode(id, amp)
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("insert_entity", err)
	if err != nil {
		return err
	}
	e.events.Log(logging.Record{Kind: logging.KindAdd, Tick: tick, Node: id})
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return nil
}

// RemoveEntity removes the entity with the highest id in natural order. It
// returns the removed id, or "" and false on an empty graph.
func (e *Engine) RemoveEntity() (string, bool) {
	e.mu.Lock()
	id, ok := e.graph.Highest()
	if ok {
		e.graph.RemoveNode(id)
	}
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("remove_entity", nil)
	if !ok {
		return "", false
	}
	e.events.Log(logging.Record{Kind: logging.KindRemove, Tick: tick, Node: id})
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return id, true
}

// RemoveEntityByID removes a specific entity.
func (e *Engine) RemoveEntityByID(id string) error {
	e.mu.Lock()
	ok := e.graph.RemoveNode(id)
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownEntity, id)
		e.metrics.observeCommand("remove_entity", err)
		return err
	}
	e.metrics.observeCommand("remove_entity", nil)
	e.events.Log(logging.Record{Kind: logging.KindRemove, Tick: tick, Node: id})
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return nil
}

// Connect adds a symmetric relation. Self relations and existing relations
// are no-ops; unknown ids fail with ErrUnknownEntity.
func (e *Engine) Connect(a, b string) error {
	return e.relate("connect", a, b, (*network.Graph).Connect)
}

// Disconnect removes the relation between a and b if present.
func (e *Engine) Disconnect(a, b string) error {
	return e.relate("disconnect", a, b, (*network.Graph).Disconnect)
}

func (e *Engine) relate(kind, a, b string, op func(*network.Graph, string, string) error) error {
	e.mu.Lock()
	err := op(e.graph, a, b)
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand(kind, err)
	if err != nil {
		return err
	}
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return nil
}

// Reconnect rebuilds every relation at density p and remembers p as the
// current connect probability.
func (e *Engine) Reconnect(p float64) error {
	if err := network.ValidateProbability("connect probability", p); err != nil {
		e.metrics.observeCommand("reconnect", err)
		return err
	}

	e.mu.Lock()
	err := e.reconnectLocked(p)
	tick := e.tick
	edges := e.graph.EdgeCount()
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("reconnect", err)
	if err != nil {
		return err
	}
	e.logger.Debug("reconnected", "connect_prob", p, "edges", edges)
	e.events.Log(logging.Record{Kind: logging.KindReconnect, Tick: tick,
		Fields: map[string]any{"connect_prob": p, "edges": edges}})
	e.notify(Event{Kind: EventStructure, Tick: tick})
	return nil
}

// reconnectLocked rewires the graph. Caller holds e.mu.
func (e *Engine) reconnectLocked(p float64) error {
	if err := e.graph.RandomizeConnections(p, e.rng); err != nil {
		return err
	}
	e.params.ConnectProb = p
	return nil
}

// SetPopulation adds or removes entities one at a time until the population
// equals n. Additions use AddEntity semantics; removals take the highest id.
// The whole adjustment happens under one lock acquisition.
func (e *Engine) SetPopulation(n int) (added, removed []string, err error) {
	if n < 0 || n > constants.MaxPopulation {
		err = fmt.Errorf("%w: population must be in [0, %d], got %d", ErrInvalidParameter, constants.MaxPopulation, n)
		e.metrics.observeCommand("set_population", err)
		return nil, nil, err
	}

	e.mu.Lock()
	for e.graph.Len() < n {
		id, addErr := e.addGeneratedLocked()
		if addErr != nil {
			err = addErr
			break
		}
		added = append(added, id)
	}
	for e.graph.Len() > n {
		id, _ := e.graph.Highest()
		e.graph.RemoveNode(id)
		removed = append(removed, id)
	}
	tick := e.tick
	e.observeGraphLocked()
	e.mu.Unlock()

	e.metrics.observeCommand("set_population", err)
	if len(added) > 0 || len(removed) > 0 {
		e.events.Log(logging.Record{Kind: logging.KindPopulation, Tick: tick,
			Fields: map[string]any{"target": n, "added": added, "removed": removed}})
		e.notify(Event{Kind: EventStructure, Tick: tick})
	}
	return added, removed, err
}
