package simulation

// EventKind classifies engine notifications.
type EventKind string

const (
	// EventTick follows one Tick call (any number of rounds).
	EventTick EventKind = "tick"
	// EventStructure follows entity, relation or forced-collapse changes.
	EventStructure EventKind = "structure"
	// EventParams follows a tunable change that did not rewire the graph.
	EventParams EventKind = "params"
	// EventRotate follows an explicit phase rotation.
	EventRotate EventKind = "rotate"
	// EventLoad follows a snapshot load.
	EventLoad EventKind = "load"
)

// Event describes a completed engine operation.
type Event struct {
	Kind      EventKind  `json:"kind"`
	Tick      uint64     `json:"tick"`
	Collapses []Collapse `json:"collapses,omitempty"`
}

// Observer receives events after the engine lock is released, on the
// goroutine that performed the operation. Observers may call back into the
// engine but should return quickly, and must not call Stop.
type Observer func(Event)

// Subscribe registers fn and returns a function that removes it.
func (e *Engine) Subscribe(fn Observer) (unsubscribe func()) {
	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.obsMu.Unlock()

	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

func (e *Engine) notify(ev Event) {
	e.obsMu.Lock()
	fns := make([]Observer, 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
