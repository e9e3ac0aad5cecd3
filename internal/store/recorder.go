package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nvandessel/solirona/internal/simulation"
)

// recorderBuffer bounds the events queued between the engine and the store.
const recorderBuffer = 1024

// Recorder subscribes to an engine and writes its collapses and periodic
// snapshots to a HistoryStore.
type Recorder struct {
	store  HistoryStore
	engine *simulation.Engine
	runID  string
	every  uint64
	logger *slog.Logger

	events      chan simulation.Event
	unsubscribe func()
	closeOnce   sync.Once
}

// NewRecorder creates a recorder that snapshots at least every `every` ticks.
// It subscribes immediately, so events emitted before Run starts are queued
// rather than lost.
func NewRecorder(s HistoryStore, e *simulation.Engine, runID string, every int, logger *slog.Logger) *Recorder {
	if every < 1 {
		every = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  s,
		engine: e,
		runID:  runID,
		every:  uint64(every),
		logger: logger,
		events: make(chan simulation.Event, recorderBuffer),
	}
	r.unsubscribe = e.Subscribe(func(ev simulation.Event) {
		select {
		case r.events <- ev:
		default:
			r.logger.Warn("recorder queue full, dropping event", "kind", ev.Kind, "tick", ev.Tick)
		}
	})
	return r
}

// Close detaches the recorder from the engine. Run calls it on return.
func (r *Recorder) Close() {
	r.closeOnce.Do(r.unsubscribe)
}

// RunID returns the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Run records until ctx is cancelled, then stores a final snapshot. Events
// that arrive while the queue is full are dropped with a warning.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.Close()
	events := r.events

	if err := r.snapshot(ctx); err != nil {
		return err
	}
	last := r.engine.State().Tick

	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued, then write the final state.
			r.drain(events)
			return r.snapshot(context.WithoutCancel(ctx))
		case ev := <-events:
			if err := r.handle(ctx, ev, &last); err != nil {
				r.logger.Error("recording event", "kind", ev.Kind, "error", err)
			}
		}
	}
}

func (r *Recorder) drain(events <-chan simulation.Event) {
	ctx := context.Background()
	for {
		select {
		case ev := <-events:
			if len(ev.Collapses) > 0 {
				if err := r.store.RecordCollapses(ctx, r.runID, ev.Collapses); err != nil {
					r.logger.Error("recording collapses", "error", err)
				}
			}
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev simulation.Event, last *uint64) error {
	if len(ev.Collapses) > 0 {
		if err := r.store.RecordCollapses(ctx, r.runID, ev.Collapses); err != nil {
			return err
		}
	}
	if ev.Kind == simulation.EventLoad || ev.Tick >= *last+r.every {
		*last = ev.Tick
		return r.snapshot(ctx)
	}
	return nil
}

func (r *Recorder) snapshot(ctx context.Context) error {
	rec := NewSnapshotRecord(r.runID, r.engine.State())
	if err := r.store.SaveSnapshot(ctx, rec); err != nil {
		return err
	}
	r.logger.Debug("snapshot recorded", "run", r.runID, "tick", rec.Tick, "population", rec.Population)
	return nil
}
