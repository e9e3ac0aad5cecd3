package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/solirona/internal/logging"
	"github.com/nvandessel/solirona/internal/waveform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestEngine builds a seeded engine and fails the test on error.
func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	e, err := NewEngine(cfg, opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func smallConfig(nodes int, connect, collapse float64) Config {
	return Config{
		NodeCount:        nodes,
		ConnectProb:      connect,
		WaveformLength:   4,
		InterferenceGain: 0.5,
		CollapseChance:   collapse,
	}
}

// assertConsistent checks that a snapshot has symmetric relations that only
// reference ids present in the same snapshot.
func assertConsistent(t *testing.T, snap Snapshot) {
	t.Helper()
	ids := make(map[string]map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		set := make(map[string]bool, len(n.Connections))
		for _, c := range n.Connections {
			set[c] = true
		}
		ids[n.ID] = set
	}
	for id, rel := range ids {
		for other := range rel {
			back, ok := ids[other]
			if !ok {
				t.Errorf("%s references removed entity %s", id, other)
				continue
			}
			if !back[id] {
				t.Errorf("relation %s-%s is not symmetric", id, other)
			}
		}
	}
}

func amplitudeOf(ns *NodeState) waveform.Amplitude {
	return waveform.FromComponents(ns.Waveform)
}

func assertUnitNorms(t *testing.T, snap Snapshot) {
	t.Helper()
	for _, n := range snap.Nodes {
		norm := amplitudeOf(&n).Norm()
		if norm != 0 && math.Abs(norm-1) > 1e-9 {
			t.Errorf("%s norm = %v, want 1", n.ID, norm)
		}
	}
}

func TestNewEngine(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	if e.Len() != 40 {
		t.Errorf("Len = %d, want 40", e.Len())
	}
	snap := e.State()
	if snap.Nodes[0].ID != "n0" || snap.Nodes[39].ID != "n39" {
		t.Errorf("ids = %s..%s, want n0..n39", snap.Nodes[0].ID, snap.Nodes[39].ID)
	}
	for _, n := range snap.Nodes {
		if n.Collapsed || n.Value != nil {
			t.Errorf("%s starts collapsed", n.ID)
		}
		if len(n.Waveform) != 128 {
			t.Errorf("%s waveform length = %d, want 128", n.ID, len(n.Waveform))
		}
	}
	assertUnitNorms(t, snap)
	assertConsistent(t, snap)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative nodes", func(c *Config) { c.NodeCount = -1 }},
		{"zero length", func(c *Config) { c.WaveformLength = 0 }},
		{"connect above one", func(c *Config) { c.ConnectProb = 1.01 }},
		{"negative collapse", func(c *Config) { c.CollapseChance = -0.5 }},
		{"NaN gain", func(c *Config) { c.InterferenceGain = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("NewEngine error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestTick_NormInvariant(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeCount = 20
	cfg.CollapseChance = 0.1
	e := newTestEngine(t, cfg)

	for i := 0; i < 50; i++ {
		if err := e.Tick(1); err != nil {
			t.Fatal(err)
		}
		assertUnitNorms(t, e.State())
	}
	if errs := e.Validate(); len(errs) != 0 {
		t.Errorf("Validate after ticks: %v", errs)
	}
}

func TestTick_InvalidCount(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 0))
	for _, n := range []int{0, -3, 1 << 30} {
		if err := e.Tick(n); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Tick(%d) = %v, want ErrInvalidParameter", n, err)
		}
	}
	if e.State().Tick != 0 {
		t.Error("rejected Tick advanced the counter")
	}
}

func TestTick_Count(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 0))
	if err := e.Tick(7); err != nil {
		t.Fatal(err)
	}
	if got := e.State().Tick; got != 7 {
		t.Errorf("Tick = %d, want 7", got)
	}
}

// No spontaneous collapse at zero probability.
func TestScenario_ZeroCollapseChance(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 0, 0))

	for i := 0; i < 100; i++ {
		if err := e.Tick(1); err != nil {
			t.Fatal(err)
		}
	}

	snap := e.State()
	if len(snap.Nodes) != 3 {
		t.Fatalf("population = %d, want 3", len(snap.Nodes))
	}
	for _, n := range snap.Nodes {
		if n.Collapsed {
			t.Errorf("%s collapsed at zero probability", n.ID)
		}
	}
	assertUnitNorms(t, snap)
}

// A basis-like amplitude collapses to its only populated slot.
func TestScenario_BasisCollapse(t *testing.T) {
	e := newTestEngine(t, smallConfig(0, 0, 1))
	if err := e.InsertEntity("n0", waveform.Amplitude{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	if err := e.Tick(1); err != nil {
		t.Fatal(err)
	}

	n := e.State().Node("n0")
	if !n.Collapsed || n.Value == nil || *n.Value != 0 {
		t.Fatalf("n0 = collapsed %v value %v, want collapsed at 0", n.Collapsed, n.Value)
	}
	if !amplitudeOf(n).IsBasis(0) {
		t.Errorf("amplitude = %v, want basis 0", n.Waveform)
	}
}

func TestScenario_SetPopulation(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0.5, 0))

	added, removed, err := e.SetPopulation(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 3 || len(removed) != 0 {
		t.Fatalf("SetPopulation(5) added %v removed %v, want 3 added", added, removed)
	}
	seen := map[string]bool{"n0": true, "n1": true}
	for _, id := range added {
		if seen[id] {
			t.Errorf("id %s reused", id)
		}
		seen[id] = true
	}

	added, removed, err = e.SetPopulation(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 0 || len(removed) != 3 {
		t.Fatalf("SetPopulation(2) added %v removed %v, want 3 removed", added, removed)
	}
	if e.Len() != 2 {
		t.Errorf("Len = %d, want 2", e.Len())
	}
	assertConsistent(t, e.State())
}

func TestSetPopulation_Invalid(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 0))
	if _, _, err := e.SetPopulation(-1); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("SetPopulation(-1) = %v, want ErrInvalidParameter", err)
	}
	if e.Len() != 2 {
		t.Error("rejected SetPopulation changed the graph")
	}
}

func TestCollapse_Idempotent(t *testing.T) {
	e := newTestEngine(t, smallConfig(1, 0, 0))

	v, did, err := e.Collapse("n0")
	if err != nil || !did {
		t.Fatalf("Collapse = %d,%v,%v", v, did, err)
	}
	n := e.State().Node("n0")
	if !n.Collapsed || n.Value == nil || *n.Value != v {
		t.Fatalf("state after collapse = %+v", n)
	}
	if v < 0 || v >= 4 {
		t.Errorf("value %d out of range", v)
	}
	if !amplitudeOf(n).IsBasis(v) {
		t.Errorf("amplitude is not basis %d", v)
	}

	before := e.State()
	v2, did, err := e.Collapse("n0")
	if err != nil || did || v2 != v {
		t.Errorf("second Collapse = %d,%v,%v want %d,false,nil", v2, did, err, v)
	}
	after := e.State()
	if *after.Node("n0").Value != *before.Node("n0").Value {
		t.Error("second Collapse changed the value")
	}

	if _, _, err := e.Collapse("ghost"); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("Collapse(ghost) = %v, want ErrUnknownEntity", err)
	}
}

// Collapsed entities keep interfering: the flag and value stay, the
// amplitude drifts away from the basis vector.
func TestCollapse_NotStickyAgainstInterference(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 1, 0))
	v, _, err := e.Collapse("n0")
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Tick(1); err != nil {
		t.Fatal(err)
	}

	n := e.State().Node("n0")
	if !n.Collapsed || *n.Value != v {
		t.Fatalf("collapse state changed: %+v", n)
	}
	if amplitudeOf(n).IsBasis(v) {
		t.Error("collapsed amplitude was not perturbed by its neighbor")
	}
	assertUnitNorms(t, e.State())
}

func TestConnect_Dedup(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 0))
	if err := e.Connect("n0", "n1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Connect("n1", "n0"); err != nil {
		t.Fatal(err)
	}
	snap := e.State()
	if got := snap.Node("n0").Connections; len(got) != 1 {
		t.Errorf("n0 connections = %v, want [n1]", got)
	}
	if got := snap.Node("n1").Connections; len(got) != 1 {
		t.Errorf("n1 connections = %v, want [n0]", got)
	}
	if err := e.Connect("n0", "ghost"); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("Connect(ghost) = %v, want ErrUnknownEntity", err)
	}
	if err := e.Disconnect("n0", "n1"); err != nil {
		t.Fatal(err)
	}
	if len(e.State().Node("n0").Connections) != 0 {
		t.Error("Disconnect left a relation")
	}
}

func TestRemoveEntity_Highest(t *testing.T) {
	e := newTestEngine(t, smallConfig(11, 1, 0))

	id, ok := e.RemoveEntity()
	if !ok || id != "n10" {
		t.Fatalf("RemoveEntity = %s,%v want n10,true", id, ok)
	}
	snap := e.State()
	for _, n := range snap.Nodes {
		for _, c := range n.Connections {
			if c == "n10" {
				t.Errorf("%s still references n10", n.ID)
			}
		}
	}
	assertConsistent(t, snap)
}

func TestRemoveEntity_Empty(t *testing.T) {
	e := newTestEngine(t, smallConfig(0, 0, 0))
	if id, ok := e.RemoveEntity(); ok || id != "" {
		t.Errorf("RemoveEntity on empty = %q,%v want \"\",false", id, ok)
	}
}

func TestRemoveEntityByID(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 1, 0))
	if err := e.RemoveEntityByID("n1"); err != nil {
		t.Fatal(err)
	}
	assertConsistent(t, e.State())
	if err := e.RemoveEntityByID("n1"); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("second remove = %v, want ErrUnknownEntity", err)
	}
}

func TestAddEntity_IDsAfterGap(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 0, 0))
	if err := e.RemoveEntityByID("n1"); err != nil {
		t.Fatal(err)
	}
	id, err := e.AddEntity()
	if err != nil {
		t.Fatal(err)
	}
	if id != "n3" {
		t.Errorf("AddEntity after gap = %s, want n3", id)
	}
}

func TestAddEntity_AttachesAtConnectProb(t *testing.T) {
	e := newTestEngine(t, smallConfig(4, 1, 0))
	id, err := e.AddEntity()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(e.State().Node(id).Connections); got != 4 {
		t.Errorf("new entity degree = %d, want 4 at connect prob 1", got)
	}
}

func TestInsertEntity_Duplicate(t *testing.T) {
	e := newTestEngine(t, smallConfig(1, 0, 0))
	err := e.InsertEntity("n0", waveform.Basis(4, 1))
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Errorf("InsertEntity duplicate = %v, want ErrDuplicateIdentifier", err)
	}
}

func TestReconnect(t *testing.T) {
	e := newTestEngine(t, smallConfig(6, 0.5, 0))

	if err := e.Reconnect(1); err != nil {
		t.Fatal(err)
	}
	for _, n := range e.State().Nodes {
		if len(n.Connections) != 5 {
			t.Errorf("%s degree = %d, want 5", n.ID, len(n.Connections))
		}
	}

	if err := e.Reconnect(0); err != nil {
		t.Fatal(err)
	}
	if s := e.Stats(); s.Edges != 0 {
		t.Errorf("Edges = %d, want 0", s.Edges)
	}
	if e.Params().ConnectProb != 0 {
		t.Errorf("ConnectProb = %v, want 0", e.Params().ConnectProb)
	}

	if err := e.Reconnect(2); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Reconnect(2) = %v, want ErrInvalidParameter", err)
	}
}

func ptr(f float64) *float64 { return &f }

func TestSetParameters(t *testing.T) {
	e := newTestEngine(t, smallConfig(4, 0, 0))

	err := e.SetParameters(ParamUpdate{InterferenceGain: ptr(0.9), CollapseChance: ptr(0.3)})
	if err != nil {
		t.Fatal(err)
	}
	p := e.Params()
	if p.InterferenceGain != 0.9 || p.CollapseChance != 0.3 {
		t.Errorf("Params = %+v", p)
	}

	// ConnectProb triggers a full rewire.
	if err := e.SetParameters(ParamUpdate{ConnectProb: ptr(1)}); err != nil {
		t.Fatal(err)
	}
	if s := e.Stats(); s.Edges != 6 {
		t.Errorf("Edges after connect_prob=1 = %d, want 6", s.Edges)
	}
}

func TestSetParameters_Atomic(t *testing.T) {
	e := newTestEngine(t, smallConfig(4, 0, 0))
	before := e.Params()

	err := e.SetParameters(ParamUpdate{
		InterferenceGain: ptr(0.1),
		CollapseChance:   ptr(1.5),
		ConnectProb:      ptr(1),
	})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("SetParameters = %v, want ErrInvalidParameter", err)
	}
	if e.Params() != before {
		t.Errorf("Params changed by rejected update: %+v", e.Params())
	}
	if e.Stats().Edges != 0 {
		t.Error("rejected update rewired the graph")
	}
}

func TestRotateAll(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 0, 0))
	_, _, _ = e.Collapse("n2")
	before := e.State()

	if err := e.RotateAll(ptr(math.Pi / 2)); err != nil {
		t.Fatal(err)
	}
	after := e.State()
	for i, n := range after.Nodes {
		b := before.Nodes[i]
		if n.Collapsed != b.Collapsed {
			t.Errorf("%s collapse flag changed", n.ID)
		}
		for k := range n.Waveform {
			if math.Abs(n.Waveform[k].Magnitude-b.Waveform[k].Magnitude) > 1e-12 {
				t.Errorf("%s slot %d magnitude changed", n.ID, k)
			}
		}
	}

	if err := e.RotateAll(nil); err != nil {
		t.Errorf("random RotateAll: %v", err)
	}
	if err := e.RotateAll(ptr(math.Inf(1))); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("RotateAll(Inf) = %v, want ErrInvalidParameter", err)
	}
	if err := e.RotatePhase("ghost", nil); !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("RotatePhase(ghost) = %v, want ErrUnknownEntity", err)
	}
}

func TestState_JSON(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 1, 0))
	_, _, _ = e.Collapse("n1")

	data, err := json.Marshal(e.State())
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Nodes []map[string]any `json:"nodes"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if v, ok := decoded.Nodes[0]["value"]; !ok || v != nil {
		t.Errorf("uncollapsed value = %v (present %v), want explicit null", v, ok)
	}
	if _, ok := decoded.Nodes[1]["value"].(float64); !ok {
		t.Errorf("collapsed value = %v, want number", decoded.Nodes[1]["value"])
	}
	wf := decoded.Nodes[0]["waveform"].([]any)
	slot := wf[0].(map[string]any)
	for _, key := range []string{"real", "imag", "magnitude", "phase"} {
		if _, ok := slot[key]; !ok {
			t.Errorf("waveform slot missing %q", key)
		}
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	src := newTestEngine(t, smallConfig(5, 0.5, 0.2))
	if err := src.Tick(10); err != nil {
		t.Fatal(err)
	}
	snap := src.State()

	dst := newTestEngine(t, smallConfig(1, 0, 0))
	if err := dst.Load(snap); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := dst.State()
	if got.Tick != snap.Tick || len(got.Nodes) != len(snap.Nodes) || got.Params != snap.Params {
		t.Fatalf("loaded state differs: tick %d/%d nodes %d/%d", got.Tick, snap.Tick, len(got.Nodes), len(snap.Nodes))
	}
	for i := range got.Nodes {
		g, s := got.Nodes[i], snap.Nodes[i]
		if g.ID != s.ID || g.Collapsed != s.Collapsed || len(g.Connections) != len(s.Connections) {
			t.Errorf("node %d differs: %+v vs %+v", i, g.ID, s.ID)
		}
	}
}

func TestLoad_RejectsCorruptSnapshot(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 1, 0))
	snap := e.State()
	snap.Nodes[0].Connections = append(snap.Nodes[0].Connections, "ghost")

	target := newTestEngine(t, smallConfig(2, 0, 0))
	before := target.State()
	if err := target.Load(snap); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("Load = %v, want ErrUnknownEntity", err)
	}
	if len(target.State().Nodes) != len(before.Nodes) {
		t.Error("rejected Load modified the engine")
	}

	bad := e.State()
	bad.Nodes[0].Collapsed = true
	if err := target.Load(bad); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Load with flag/value mismatch = %v, want ErrInvalidParameter", err)
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, smallConfig(4, 1, 0))
	_, _, _ = e.Collapse("n0")

	s := e.Stats()
	if s.Population != 4 || s.Collapsed != 1 || s.Edges != 6 {
		t.Errorf("Stats = %+v", s)
	}
	if s.CollapsedPercent != 25 {
		t.Errorf("CollapsedPercent = %v, want 25", s.CollapsedPercent)
	}
	if s.AvgMagnitude <= 0 || s.AvgMagnitude > 1 {
		t.Errorf("AvgMagnitude = %v", s.AvgMagnitude)
	}
	if s.Running {
		t.Error("Running without a driver")
	}
}

func TestDeterministicSeed(t *testing.T) {
	cfg := smallConfig(6, 0.4, 0.1)
	cfg.Seed = 1234
	a := newTestEngine(t, cfg)
	b := newTestEngine(t, cfg)
	_ = a.Tick(20)
	_ = b.Tick(20)

	sa, sb := a.State(), b.State()
	for i := range sa.Nodes {
		for k := range sa.Nodes[i].Waveform {
			if sa.Nodes[i].Waveform[k] != sb.Nodes[i].Waveform[k] {
				t.Fatalf("seeded engines diverged at %s slot %d", sa.Nodes[i].ID, k)
			}
		}
	}
}

func TestSubscribe(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 1))

	var mu sync.Mutex
	var events []Event
	unsubscribe := e.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		// Observers run outside the lock and may read state.
		_ = e.State()
	})

	_ = e.Tick(1)
	_, _ = e.AddEntity()
	_ = e.SetParameters(ParamUpdate{CollapseChance: ptr(0)})
	unsubscribe()
	_ = e.Tick(1)

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventTick, EventStructure, EventParams}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %s, want %s", i, events[i].Kind, k)
		}
	}
	if len(events[0].Collapses) != 2 {
		t.Errorf("tick event collapses = %d, want 2 at chance 1", len(events[0].Collapses))
	}
}

func TestDriver_StartStop(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 0.5, 0))

	if !e.Start(time.Millisecond) {
		t.Fatal("Start = false")
	}
	if e.Start(time.Millisecond) {
		t.Error("second Start = true")
	}
	if !e.Running() {
		t.Error("Running = false after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for e.State().Tick < 3 {
		if time.Now().After(deadline) {
			t.Fatal("driver did not tick")
		}
		time.Sleep(time.Millisecond)
	}

	if !e.Stop() {
		t.Fatal("Stop = false")
	}
	if e.Stop() {
		t.Error("second Stop = true")
	}
	stopped := e.State().Tick
	time.Sleep(20 * time.Millisecond)
	if got := e.State().Tick; got != stopped {
		t.Errorf("ticks advanced after Stop: %d -> %d", stopped, got)
	}
}

func TestDriver_ObserverReadsStats(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 0.5, 0))

	var running []bool
	var mu sync.Mutex
	unsubscribe := e.Subscribe(func(ev Event) {
		if ev.Kind != EventParams {
			return
		}
		s := e.Stats()
		mu.Lock()
		running = append(running, s.Running)
		mu.Unlock()
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		e.Start(time.Hour)
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start/Stop deadlocked with an observer reading Stats")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(running) != 2 || !running[0] || running[1] {
		t.Errorf("observed running flags = %v, want [true false]", running)
	}
}

func TestRun_Cancel(t *testing.T) {
	e := newTestEngine(t, smallConfig(2, 0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, time.Millisecond) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := e.Run(context.Background(), 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Run(0) = %v, want ErrInvalidParameter", err)
	}
}

// A burst of structural edits from several goroutines while the driver runs
// must never expose a half-applied edit.
func TestConcurrentBurstWithDriver(t *testing.T) {
	e := newTestEngine(t, smallConfig(10, 0.3, 0.05))
	e.Start(time.Millisecond)
	defer e.Stop()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch (w + i) % 5 {
				case 0:
					_, _ = e.AddEntity()
				case 1:
					e.RemoveEntity()
				case 2:
					_ = e.Tick(1)
				case 3:
					_ = e.Reconnect(0.3)
				case 4:
					assertConsistent(t, e.State())
				}
			}
		}(w)
	}
	wg.Wait()

	e.Stop()
	if errs := e.Validate(); len(errs) != 0 {
		t.Errorf("Validate after burst: %v", errs)
	}
	assertConsistent(t, e.State())
	assertUnitNorms(t, e.State())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newTestEngine(t, smallConfig(3, 1, 1), WithMetrics(m))

	if err := e.Tick(2); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Errorf("rounds_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.collapses); got != 3 {
		t.Errorf("collapses_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.population); got != 3 {
		t.Errorf("entities = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.edges); got != 3 {
		t.Errorf("relations = %v, want 3", got)
	}

	_ = e.Reconnect(5)
	if got := testutil.ToFloat64(m.commands.WithLabelValues("reconnect", "invalid")); got != 1 {
		t.Errorf("invalid reconnect count = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.observeTicks(1, 1, time.Millisecond)
	m.observeGraph(1, 0, 0)
	m.observeCommand("x", nil)
	m.setRunning(true)
}

func TestInterferenceGain_Bound(t *testing.T) {
	cfg := smallConfig(3, 1, 0)
	cfg.InterferenceGain = 1e7
	if _, err := NewEngine(cfg); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("NewEngine(gain 1e7) = %v, want ErrInvalidParameter", err)
	}

	e := newTestEngine(t, smallConfig(3, 1, 0))
	for _, g := range []float64{1e7, -1e7, math.NaN()} {
		if err := e.SetParameters(ParamUpdate{InterferenceGain: ptr(g)}); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("SetParameters(gain %v) = %v, want ErrInvalidParameter", g, err)
		}
	}
	if got := e.Params().InterferenceGain; got != 0.5 {
		t.Errorf("rejected gain applied: %v", got)
	}
}

func TestTick_MaxGainStaysFinite(t *testing.T) {
	cfg := smallConfig(30, 1, 0)
	cfg.InterferenceGain = 1e6
	e := newTestEngine(t, cfg)

	if err := e.Tick(200); err != nil {
		t.Fatal(err)
	}
	if errs := e.Validate(); len(errs) != 0 {
		t.Fatalf("Validate after max gain: %v", errs)
	}
	assertUnitNorms(t, e.State())
	if _, err := json.Marshal(e.State()); err != nil {
		t.Errorf("State not encodable: %v", err)
	}
}

func TestLoad_RejectsNonFiniteAmplitude(t *testing.T) {
	e := newTestEngine(t, smallConfig(3, 1, 0))
	target := newTestEngine(t, smallConfig(2, 0, 0))

	for _, bad := range []float64{math.NaN(), math.Inf(-1)} {
		snap := e.State()
		snap.Nodes[1].Waveform[0].Real = bad
		if err := target.Load(snap); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("Load with %v component = %v, want ErrInvalidParameter", bad, err)
		}
	}
	if target.Len() != 2 {
		t.Error("rejected Load modified the engine")
	}
}

func TestMetrics_RotateOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newTestEngine(t, smallConfig(2, 0, 0), WithMetrics(m))

	_ = e.RotatePhase("n0", ptr(1))
	_ = e.RotatePhase("n0", ptr(math.NaN()))
	_ = e.RotatePhase("ghost", nil)
	_ = e.RotateAll(ptr(math.Inf(1)))
	_ = e.RotateAll(nil)

	tests := []struct {
		outcome string
		want    float64
	}{
		{"ok", 2},
		{"invalid", 2},
		{"unknown", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.commands.WithLabelValues("rotate", tt.outcome)); got != tt.want {
			t.Errorf("rotate %s = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestEventLogger_EngineRecords(t *testing.T) {
	dir := t.TempDir()
	events := logging.NewEventLogger(dir, "trace")
	defer events.Close()
	e := newTestEngine(t, smallConfig(2, 0, 1), WithEventLogger(events))

	if _, err := e.Step(1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddEntity(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, logging.EventsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var kinds []string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var rec struct {
			Kind string `json:"kind"`
			Tick uint64 `json:"tick"`
			Node string `json:"node"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		if rec.Tick != 1 {
			t.Errorf("%s tick = %d, want 1", rec.Kind, rec.Tick)
		}
		kinds = append(kinds, rec.Kind)
	}

	want := []string{"collapse", "collapse", "tick", "add"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("event kinds = %v, want %v", kinds, want)
	}
}
