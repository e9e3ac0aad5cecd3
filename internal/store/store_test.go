package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/simulation"
)

// storeFactories runs each contract test against every implementation.
var storeFactories = []struct {
	name string
	new  func(t *testing.T) HistoryStore
}{
	{"memory", func(t *testing.T) HistoryStore { return NewInMemoryHistoryStore() }},
	{"sqlite", func(t *testing.T) HistoryStore {
		t.Helper()
		s, err := NewSQLiteHistoryStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewSQLiteHistoryStore() error = %v", err)
		}
		return s
	}},
}

func forEachStore(t *testing.T, fn func(t *testing.T, s HistoryStore)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			s := f.new(t)
			defer s.Close()
			fn(t, s)
		})
	}
}

func testEngine(t *testing.T, collapse float64) *simulation.Engine {
	t.Helper()
	e, err := simulation.NewEngine(simulation.Config{
		NodeCount:        4,
		ConnectProb:      0.5,
		WaveformLength:   8,
		InterferenceGain: 0.5,
		CollapseChance:   collapse,
		Seed:             3,
	}, simulation.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewSQLiteHistoryStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	s, err := NewSQLiteHistoryStore(dir)
	if err != nil {
		t.Fatalf("NewSQLiteHistoryStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "solirona.db")); os.IsNotExist(err) {
		t.Error("solirona.db was not created")
	}
	if s.Path() != filepath.Join(dir, "solirona.db") {
		t.Errorf("Path() = %s", s.Path())
	}
}

func TestSQLiteHistoryStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSQLiteHistoryStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	run, err := s.CreateRun(ctx, Run{NodeCount: 3, WaveformLength: 4, Seed: 1 << 63})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteHistoryStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
	if got.Seed != 1<<63 {
		t.Errorf("Seed = %d, want %d", got.Seed, uint64(1<<63))
	}
}

func TestCreateRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx := context.Background()
		params := simulation.Params{InterferenceGain: 0.5, CollapseChance: 0.05, ConnectProb: 0.3}

		run, err := s.CreateRun(ctx, Run{NodeCount: 40, WaveformLength: 128, Params: params, Note: "first"})
		if err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
		if run.ID == "" {
			t.Error("CreateRun() left ID empty")
		}
		if run.StartedAt.IsZero() {
			t.Error("CreateRun() left StartedAt zero")
		}

		got, err := s.GetRun(ctx, run.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.NodeCount != 40 || got.WaveformLength != 128 || got.Note != "first" || got.Params != params {
			t.Errorf("GetRun() = %+v", got)
		}

		if _, err := s.CreateRun(ctx, Run{ID: run.ID}); err == nil {
			t.Error("duplicate CreateRun() succeeded")
		}
	})
}

func TestGetRun_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestSnapshots(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx := context.Background()
		e := testEngine(t, 0.5)
		run, err := s.CreateRun(ctx, Run{NodeCount: 4, WaveformLength: 8})
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 3; i++ {
			if err := e.Tick(5); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveSnapshot(ctx, NewSnapshotRecord(run.ID, e.State())); err != nil {
				t.Fatalf("SaveSnapshot() error = %v", err)
			}
		}

		list, err := s.ListSnapshots(ctx, run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 {
			t.Fatalf("ListSnapshots() len = %d, want 3", len(list))
		}
		for i, rec := range list {
			if rec.Tick != uint64(5*(i+1)) {
				t.Errorf("snapshot %d tick = %d, want %d", i, rec.Tick, 5*(i+1))
			}
			if len(rec.Snapshot.Nodes) != 0 {
				t.Error("ListSnapshots() returned payloads")
			}
		}

		latest, err := s.LatestSnapshot(ctx, run.ID)
		if err != nil {
			t.Fatal(err)
		}
		want := e.State()
		if latest.Tick != 15 || len(latest.Snapshot.Nodes) != len(want.Nodes) {
			t.Fatalf("LatestSnapshot() tick %d nodes %d", latest.Tick, len(latest.Snapshot.Nodes))
		}

		// The stored payload loads back into an engine.
		fresh := testEngine(t, 0)
		if err := fresh.Load(latest.Snapshot); err != nil {
			t.Fatalf("Load(latest) error = %v", err)
		}
		if fresh.State().Tick != 15 {
			t.Errorf("loaded tick = %d, want 15", fresh.State().Tick)
		}

		sum, _ := s.GetRun(ctx, run.ID)
		if sum.Snapshots != 3 || sum.LatestTick != 15 {
			t.Errorf("summary = %+v", sum)
		}
	})
}

func TestSaveSnapshot_UnknownRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		rec := NewSnapshotRecord("missing", simulation.Snapshot{})
		if err := s.SaveSnapshot(context.Background(), rec); !errors.Is(err, ErrNotFound) {
			t.Errorf("SaveSnapshot(missing) error = %v, want ErrNotFound", err)
		}
		if _, err := s.LatestSnapshot(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestSnapshot(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestCollapseHistogram(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx := context.Background()
		run, _ := s.CreateRun(ctx, Run{})

		err := s.RecordCollapses(ctx, run.ID, []simulation.Collapse{
			{ID: "n0", Value: 3, Tick: 1},
			{ID: "n1", Value: 3, Tick: 1},
			{ID: "n2", Value: 7, Tick: 2},
		})
		if err != nil {
			t.Fatalf("RecordCollapses() error = %v", err)
		}
		if err := s.RecordCollapses(ctx, run.ID, nil); err != nil {
			t.Errorf("empty RecordCollapses() error = %v", err)
		}

		hist, err := s.CollapseHistogram(ctx, run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if hist[3] != 2 || hist[7] != 1 || len(hist) != 2 {
			t.Errorf("CollapseHistogram() = %v", hist)
		}

		if err := s.RecordCollapses(ctx, "missing", []simulation.Collapse{{ID: "n0"}}); !errors.Is(err, ErrNotFound) {
			t.Errorf("RecordCollapses(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestListRuns_NewestFirst(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"old", "mid", "new"} {
			if _, err := s.CreateRun(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
				t.Fatal(err)
			}
		}

		runs, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 3 || runs[0].ID != "new" || runs[2].ID != "old" {
			t.Errorf("ListRuns() order = %v", runIDs(runs))
		}
	})
}

func runIDs(runs []RunSummary) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestRecorder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx, cancel := context.WithCancel(context.Background())
		e := testEngine(t, 1)
		run, _ := s.CreateRun(ctx, Run{})

		rec := NewRecorder(s, e, run.ID, 2, logging.Discard())
		done := make(chan error, 1)
		go func() { done <- rec.Run(ctx) }()

		// Wait for the initial snapshot.
		waitFor(t, func() bool {
			list, _ := s.ListSnapshots(context.Background(), run.ID)
			return len(list) >= 1
		})

		for i := 0; i < 4; i++ {
			if err := e.Tick(1); err != nil {
				t.Fatal(err)
			}
		}

		waitFor(t, func() bool {
			hist, _ := s.CollapseHistogram(context.Background(), run.ID)
			total := 0
			for _, n := range hist {
				total += n
			}
			return total == 4
		})

		cancel()
		if err := <-done; err != nil {
			t.Fatalf("Recorder.Run() error = %v", err)
		}

		latest, err := s.LatestSnapshot(context.Background(), run.ID)
		if err != nil {
			t.Fatal(err)
		}
		if latest.Tick != 4 || latest.Collapsed != 4 {
			t.Errorf("final snapshot tick %d collapsed %d, want 4/4", latest.Tick, latest.Collapsed)
		}
	})
}

func TestRecorder_QueuesEventsBeforeRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, s HistoryStore) {
		ctx, cancel := context.WithCancel(context.Background())
		e := testEngine(t, 1)
		run, _ := s.CreateRun(ctx, Run{})

		rec := NewRecorder(s, e, run.ID, 100, logging.Discard())
		// The driver may tick before the recorder goroutine is scheduled.
		if err := e.Tick(1); err != nil {
			t.Fatal(err)
		}

		done := make(chan error, 1)
		go func() { done <- rec.Run(ctx) }()

		waitFor(t, func() bool {
			hist, _ := s.CollapseHistogram(context.Background(), run.ID)
			total := 0
			for _, n := range hist {
				total += n
			}
			return total == 4
		})
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("Recorder.Run() error = %v", err)
		}
	})
}

func TestRecorder_CloseDetaches(t *testing.T) {
	s := NewInMemoryHistoryStore()
	defer s.Close()
	ctx := context.Background()
	e := testEngine(t, 1)
	run, _ := s.CreateRun(ctx, Run{})

	rec := NewRecorder(s, e, run.ID, 1, logging.Discard())
	rec.Close()
	rec.Close()
	if err := e.Tick(1); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.events); n != 0 {
		t.Errorf("closed recorder queued %d events", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
