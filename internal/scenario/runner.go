package scenario

import (
	"context"
	"sync"
	"testing"

	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/simulation"
	"github.com/nvandessel/solirona/internal/store"
)

// Runner orchestrates scenario experiments against a real engine and, when
// requested, a real SQLite history store.
type Runner struct {
	t     *testing.T
	store *store.SQLiteHistoryStore
}

// NewRunner creates a scenario runner with an isolated SQLite store and
// sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	s, err := store.NewSQLiteHistoryStore(tmpDir)
	if err != nil {
		t.Fatalf("NewRunner: failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return &Runner{t: t, store: s}
}

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(sc Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	engine, err := simulation.NewEngine(sc.Config, simulation.WithLogger(logging.Discard()))
	if err != nil {
		r.t.Fatalf("%s: NewEngine: %v", sc.Name, err)
	}
	r.seed(engine, sc)

	res := Result{Initial: engine.State(), Engine: engine}
	if sc.Record {
		run, err := r.store.CreateRun(ctx, store.Run{
			NodeCount:      engine.Len(),
			WaveformLength: sc.Config.WaveformLength,
			Seed:           sc.Config.Seed,
			Params:         engine.Params(),
			Note:           sc.Name,
		})
		if err != nil {
			r.t.Fatalf("%s: CreateRun: %v", sc.Name, err)
		}
		res.RunID, res.Store = run.ID, r.store
		r.record(ctx, sc, run.ID, res.Initial, nil)
	}

	var (
		mu        sync.Mutex
		collapses []simulation.Collapse
	)
	unsubscribe := engine.Subscribe(func(ev simulation.Event) {
		mu.Lock()
		collapses = append(collapses, ev.Collapses...)
		mu.Unlock()
	})
	defer unsubscribe()

	for i, step := range sc.Steps {
		if step.Apply != nil {
			if err := step.Apply(engine); err != nil {
				r.t.Fatalf("%s: step %d (%s): apply: %v", sc.Name, i, step.Label, err)
			}
		}
		if step.Ticks > 0 {
			if err := engine.Tick(step.Ticks); err != nil {
				r.t.Fatalf("%s: step %d (%s): Tick(%d): %v", sc.Name, i, step.Label, step.Ticks, err)
			}
		}

		// Observers run synchronously after each operation returns.
		mu.Lock()
		stepCollapses := collapses
		collapses = nil
		mu.Unlock()

		sr := StepResult{
			Index:     i,
			Label:     step.Label,
			Snapshot:  engine.State(),
			Stats:     engine.Stats(),
			Collapses: stepCollapses,
		}
		res.Steps = append(res.Steps, sr)
		if sc.Record {
			r.record(ctx, sc, res.RunID, sr.Snapshot, sr.Collapses)
		}
	}
	return res
}

// seed inserts the scenario's entities and edges.
func (r *Runner) seed(engine *simulation.Engine, sc Scenario) {
	r.t.Helper()
	for _, es := range sc.Entities {
		if err := engine.InsertEntity(es.ID, es.amplitude(sc.Config.WaveformLength)); err != nil {
			r.t.Fatalf("%s: InsertEntity(%s): %v", sc.Name, es.ID, err)
		}
	}
	for _, edge := range sc.Edges {
		if err := engine.Connect(edge.A, edge.B); err != nil {
			r.t.Fatalf("%s: Connect(%s, %s): %v", sc.Name, edge.A, edge.B, err)
		}
	}
}

func (r *Runner) record(ctx context.Context, sc Scenario, runID string, snap simulation.Snapshot, collapses []simulation.Collapse) {
	r.t.Helper()
	if err := r.store.RecordCollapses(ctx, runID, collapses); err != nil {
		r.t.Fatalf("%s: RecordCollapses: %v", sc.Name, err)
	}
	if err := r.store.SaveSnapshot(ctx, store.NewSnapshotRecord(runID, snap)); err != nil {
		r.t.Fatalf("%s: SaveSnapshot(tick %d): %v", sc.Name, snap.Tick, err)
	}
}
