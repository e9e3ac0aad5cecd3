// Package store defines the HistoryStore interface for recording simulation
// runs: periodic engine snapshots and every collapse event.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/solirona/internal/simulation"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// Run describes one recorded simulation session.
type Run struct {
	ID             string            `json:"id"`
	StartedAt      time.Time         `json:"started_at"`
	NodeCount      int               `json:"node_count"`
	WaveformLength int               `json:"waveform_length"`
	Seed           uint64            `json:"seed,omitempty"`
	Params         simulation.Params `json:"params"`
	Note           string            `json:"note,omitempty"`
}

// SnapshotRecord is a stored engine snapshot plus summary columns.
type SnapshotRecord struct {
	RunID      string              `json:"run_id"`
	Tick       uint64              `json:"tick"`
	CreatedAt  time.Time           `json:"created_at"`
	Population int                 `json:"population"`
	Collapsed  int                 `json:"collapsed"`
	Snapshot   simulation.Snapshot `json:"snapshot"`
}

// NewSnapshotRecord fills the summary columns from snap.
func NewSnapshotRecord(runID string, snap simulation.Snapshot) SnapshotRecord {
	collapsed := 0
	for _, n := range snap.Nodes {
		if n.Collapsed {
			collapsed++
		}
	}
	return SnapshotRecord{
		RunID:      runID,
		Tick:       snap.Tick,
		CreatedAt:  time.Now().UTC(),
		Population: len(snap.Nodes),
		Collapsed:  collapsed,
		Snapshot:   snap,
	}
}

// RunSummary is a Run with aggregate counters for listings.
type RunSummary struct {
	Run
	Snapshots  int    `json:"snapshots"`
	Collapses  int    `json:"collapses"`
	LatestTick uint64 `json:"latest_tick"`
}

// HistoryStore persists simulation runs.
type HistoryStore interface {
	// CreateRun registers a new run. An empty ID is replaced with a UUID.
	CreateRun(ctx context.Context, run Run) (Run, error)

	// SaveSnapshot stores a snapshot for an existing run. A second snapshot
	// at the same tick replaces the first.
	SaveSnapshot(ctx context.Context, rec SnapshotRecord) error

	// RecordCollapses appends collapse events for an existing run.
	RecordCollapses(ctx context.Context, runID string, collapses []simulation.Collapse) error

	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// GetRun returns a single run summary.
	GetRun(ctx context.Context, runID string) (*RunSummary, error)

	// ListSnapshots returns snapshot summaries for a run in tick order.
	// The Snapshot payload is left empty.
	ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error)

	// LatestSnapshot returns the highest-tick snapshot for a run.
	LatestSnapshot(ctx context.Context, runID string) (*SnapshotRecord, error)

	// CollapseHistogram counts collapses per resolved value for a run.
	CollapseHistogram(ctx context.Context, runID string) (map[int]int, error)

	// Close releases resources.
	Close() error
}
