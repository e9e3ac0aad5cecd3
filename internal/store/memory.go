package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/solirona/internal/simulation"
)

// InMemoryHistoryStore implements HistoryStore for testing and for runs with
// storage disabled.
type InMemoryHistoryStore struct {
	mu        sync.RWMutex
	runs      map[string]Run
	snapshots map[string]map[uint64]SnapshotRecord
	collapses map[string][]simulation.Collapse
}

// NewInMemoryHistoryStore creates a new in-memory store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		runs:      make(map[string]Run),
		snapshots: make(map[string]map[uint64]SnapshotRecord),
		collapses: make(map[string][]simulation.Collapse),
	}
}

// CreateRun registers a new run.
func (s *InMemoryHistoryStore) CreateRun(ctx context.Context, run Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if _, exists := s.runs[run.ID]; exists {
		return Run{}, fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	s.snapshots[run.ID] = make(map[uint64]SnapshotRecord)
	return run, nil
}

// SaveSnapshot stores a snapshot.
func (s *InMemoryHistoryStore) SaveSnapshot(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[rec.RunID]; !ok {
		return fmt.Errorf("run %s: %w", rec.RunID, ErrNotFound)
	}
	s.snapshots[rec.RunID][rec.Tick] = rec
	return nil
}

// RecordCollapses appends collapse events.
func (s *InMemoryHistoryStore) RecordCollapses(ctx context.Context, runID string, collapses []simulation.Collapse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	s.collapses[runID] = append(s.collapses[runID], collapses...)
	return nil
}

// ListRuns returns every run, newest first.
func (s *InMemoryHistoryStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunSummary, 0, len(s.runs))
	for id := range s.runs {
		out = append(out, s.summaryLocked(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// GetRun returns a single run summary.
func (s *InMemoryHistoryStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	sum := s.summaryLocked(runID)
	return &sum, nil
}

func (s *InMemoryHistoryStore) summaryLocked(id string) RunSummary {
	sum := RunSummary{
		Run:       s.runs[id],
		Snapshots: len(s.snapshots[id]),
		Collapses: len(s.collapses[id]),
	}
	for tick := range s.snapshots[id] {
		if tick > sum.LatestTick {
			sum.LatestTick = tick
		}
	}
	return sum
}

// ListSnapshots returns snapshot summaries in tick order.
func (s *InMemoryHistoryStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps, ok := s.snapshots[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	out := make([]SnapshotRecord, 0, len(snaps))
	for _, rec := range snaps {
		rec.Snapshot = simulation.Snapshot{}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

// LatestSnapshot returns the highest-tick snapshot.
func (s *InMemoryHistoryStore) LatestSnapshot(ctx context.Context, runID string) (*SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *SnapshotRecord
	for _, rec := range s.snapshots[runID] {
		if latest == nil || rec.Tick > latest.Tick {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("snapshot for run %s: %w", runID, ErrNotFound)
	}
	return latest, nil
}

// CollapseHistogram counts collapses per value.
func (s *InMemoryHistoryStore) CollapseHistogram(ctx context.Context, runID string) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.runs[runID]; !ok {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	hist := make(map[int]int)
	for _, c := range s.collapses[runID] {
		hist[c.Value]++
	}
	return hist, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryHistoryStore) Close() error { return nil }

var _ HistoryStore = (*InMemoryHistoryStore)(nil)
