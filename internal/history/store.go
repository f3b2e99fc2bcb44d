// Package history persists finished plan runs to SQLite so past runs
// can be listed and inspected.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cloud-shuttle/sherpa/pkg/types"
)

// Store manages the run-history database
type Store struct {
	DB *sql.DB
}

// Run is one persisted plan execution
type Run struct {
	ID        string
	Goal      string
	Success   bool
	Total     int
	Completed int
	Failed    int
	Skipped   int
	StartedAt time.Time
	EndedAt   time.Time
}

// TaskRecord is one task's final state within a run
type TaskRecord struct {
	RunID       string
	Number      int
	Description string
	Status      string
	Error       string
}

// Open opens the history database at the given path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to handle lock contention gracefully
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Store{DB: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

// InitSchema creates the database schema
func (s *Store) InitSchema() error {
	schema := `
	-- Runs are finished plan executions
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		success INTEGER NOT NULL,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);

	-- Final task states belonging to a run
	CREATE TABLE IF NOT EXISTS run_tasks (
		run_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, number),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_run_tasks_run ON run_tasks(run_id);
	`

	if _, err := s.DB.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// RecordRun writes a finished run and its task states in one transaction
func (s *Store) RecordRun(goal string, result types.ExecutionResult, tasks []*types.Task, startedAt time.Time) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	success := 0
	if result.Success {
		success = 1
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, goal, success, total, completed, failed, skipped, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, goal, success, result.Total, result.Completed, result.Failed, result.Skipped,
		startedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, t := range tasks {
		_, err = tx.Exec(`
			INSERT INTO run_tasks (run_id, number, description, status, error)
			VALUES (?, ?, ?, ?, ?)`,
			id, t.Number, t.Description, string(t.Status), t.Error)
		if err != nil {
			return fmt.Errorf("inserting run task %d: %w", t.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.Query(`
		SELECT id, goal, success, total, completed, failed, skipped, started_at, ended_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var success int
		var started, ended int64
		if err := rows.Scan(&r.ID, &r.Goal, &success, &r.Total, &r.Completed, &r.Failed, &r.Skipped, &started, &ended); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Success = success == 1
		r.StartedAt = time.Unix(started, 0)
		r.EndedAt = time.Unix(ended, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTasks returns the recorded task states of a run, in plan order
func (s *Store) RunTasks(runID string) ([]TaskRecord, error) {
	rows, err := s.DB.Query(`
		SELECT run_id, number, description, status, error
		FROM run_tasks WHERE run_id = ? ORDER BY number`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var t TaskRecord
		var taskErr sql.NullString
		if err := rows.Scan(&t.RunID, &t.Number, &t.Description, &t.Status, &taskErr); err != nil {
			return nil, fmt.Errorf("scanning run task: %w", err)
		}
		t.Error = taskErr.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
