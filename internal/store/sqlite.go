package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/solirona/internal/constants"
	"github.com/nvandessel/solirona/internal/simulation"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteHistoryStore implements HistoryStore using SQLite for persistence.
type SQLiteHistoryStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteHistoryStore opens (or creates) dataDir/solirona.db.
func NewSQLiteHistoryStore(dataDir string) (*SQLiteHistoryStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, constants.DatabaseFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistoryStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteHistoryStore) Path() string { return s.dbPath }

// CreateRun registers a new run.
func (s *SQLiteHistoryStore) CreateRun(ctx context.Context, run Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return Run{}, fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, node_count, waveform_length, seed, params, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Format(time.RFC3339Nano), run.NodeCount, run.WaveformLength,
		int64(run.Seed), string(params), run.Note)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// SaveSnapshot stores a snapshot, replacing any existing one at the same tick.
func (s *SQLiteHistoryStore) SaveSnapshot(ctx context.Context, rec SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRun(ctx, rec.RunID); err != nil {
		return err
	}

	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (run_id, tick, created_at, population, collapsed, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, int64(rec.Tick), createdAt.Format(time.RFC3339Nano), rec.Population, rec.Collapsed, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// RecordCollapses appends collapse events in one transaction.
func (s *SQLiteHistoryStore) RecordCollapses(ctx context.Context, runID string, collapses []simulation.Collapse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}
	if len(collapses) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO collapses (run_id, tick, node_id, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare collapse insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range collapses {
		if _, err := stmt.ExecContext(ctx, runID, int64(c.Tick), c.ID, c.Value); err != nil {
			return fmt.Errorf("failed to insert collapse for %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// requireRun returns ErrNotFound if runID is unknown. Caller holds s.mu.
func (s *SQLiteHistoryStore) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run %s: %w", runID, err)
	}
	return nil
}

const runSummaryQuery = `
	SELECT r.id, r.started_at, r.node_count, r.waveform_length, r.seed, r.params, COALESCE(r.note, ''),
	       (SELECT COUNT(*) FROM snapshots WHERE run_id = r.id),
	       (SELECT COUNT(*) FROM collapses WHERE run_id = r.id),
	       (SELECT COALESCE(MAX(tick), 0) FROM snapshots WHERE run_id = r.id)
	FROM runs r`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunSummary(row rowScanner) (RunSummary, error) {
	var (
		sum        RunSummary
		startedAt  string
		seed       int64
		params     string
		latestTick int64
	)
	if err := row.Scan(&sum.ID, &startedAt, &sum.NodeCount, &sum.WaveformLength, &seed, &params, &sum.Note,
		&sum.Snapshots, &sum.Collapses, &latestTick); err != nil {
		return RunSummary{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to parse started_at for run %s: %w", sum.ID, err)
	}
	sum.StartedAt = t
	sum.Seed = uint64(seed)
	sum.LatestTick = uint64(latestTick)
	if err := json.Unmarshal([]byte(params), &sum.Params); err != nil {
		return RunSummary{}, fmt.Errorf("failed to unmarshal params for run %s: %w", sum.ID, err)
	}
	return sum, nil
}

// ListRuns returns every run, newest first.
func (s *SQLiteHistoryStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, runSummaryQuery+` ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		sum, err := scanRunSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetRun returns a single run summary.
func (s *SQLiteHistoryStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, err := scanRunSummary(s.db.QueryRowContext(ctx, runSummaryQuery+` WHERE r.id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &sum, nil
}

// ListSnapshots returns snapshot summaries in tick order.
func (s *SQLiteHistoryStore) ListSnapshots(ctx context.Context, runID string) ([]SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, created_at, population, collapsed
		FROM snapshots WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			rec       = SnapshotRecord{RunID: runID}
			tick      int64
			createdAt string
		)
		if err := rows.Scan(&tick, &createdAt, &rec.Population, &rec.Collapsed); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		rec.Tick = uint64(tick)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the highest-tick snapshot with its payload.
func (s *SQLiteHistoryStore) LatestSnapshot(ctx context.Context, runID string) (*SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       = SnapshotRecord{RunID: runID}
		tick      int64
		createdAt string
		data      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT tick, created_at, population, collapsed, data
		FROM snapshots WHERE run_id = ? ORDER BY tick DESC LIMIT 1`, runID).
		Scan(&tick, &createdAt, &rec.Population, &rec.Collapsed, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	rec.Tick = uint64(tick)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(data), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

// CollapseHistogram counts collapses per value.
func (s *SQLiteHistoryStore) CollapseHistogram(ctx context.Context, runID string) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT value, COUNT(*) FROM collapses WHERE run_id = ? GROUP BY value`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collapses: %w", err)
	}
	defer rows.Close()

	hist := make(map[int]int)
	for rows.Next() {
		var value, count int
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("failed to scan collapse count: %w", err)
		}
		hist[value] = count
	}
	return hist, rows.Err()
}

// Close closes the database.
func (s *SQLiteHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

var _ HistoryStore = (*SQLiteHistoryStore)(nil)
