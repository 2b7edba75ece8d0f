// Package history persists run reports in a local SQLite database so past
// sync outcomes survive process restarts and stay queryable from the CLI.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	runsync "git.home.luguber.info/inful/wikimirror/internal/sync"
)

// ErrNotFound is returned when no stored run matches the requested ID.
var ErrNotFound = errors.New("run not found")

// Entry is the summary row kept for listings; the full report is stored
// alongside as JSON and retrieved with Get.
type Entry struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    runsync.Outcome
	Pages      int
	Requests   int64
	Violations int
	Published  bool
}

// Store is a SQLite-backed run report archive.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the store at path. Use ":memory:" for an ephemeral
// store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		pages INTEGER NOT NULL,
		requests INTEGER NOT NULL,
		violations INTEGER NOT NULL,
		published INTEGER NOT NULL,
		report BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a finished run report.
func (s *Store) Append(ctx context.Context, report *runsync.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, finished_at, outcome, pages, requests, violations, published, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.StartedAt.Unix(),
		report.FinishedAt.Unix(),
		string(report.Outcome),
		report.Pages,
		report.Requests,
		len(report.Violations),
		report.Published,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// List returns run summaries, newest first. A non-positive limit returns
// all stored runs.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, outcome, pages, requests, violations, published
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		var outcome string
		if err := rows.Scan(&e.RunID, &started, &finished, &outcome,
			&e.Pages, &e.Requests, &e.Violations, &e.Published); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		e.StartedAt = time.Unix(started, 0)
		e.FinishedAt = time.Unix(finished, 0)
		e.Outcome = runsync.Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return entries, nil
}

// Get retrieves the full report for a run ID.
func (s *Store) Get(ctx context.Context, runID string) (*runsync.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT report FROM runs WHERE run_id = ?", runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	var report runsync.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("unmarshal run report %s: %w", runID, err)
	}
	return &report, nil
}

// Prune deletes all but the most recent keep runs.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		return fmt.Errorf("prune keep count must be non-negative, got %d", keep)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)", keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
