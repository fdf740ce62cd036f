// ABOUTME: SQLite-backed audit log of workflow runs and their step outcomes.
// ABOUTME: Records finished facts for the CLI and web server; never read back to resume a run.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// Run statuses. A run is "running" from workflow.started until a terminal
// event arrives.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Run is a row from the runs table.
type Run struct {
	RunID      string  `json:"run_id"`
	Workflow   string  `json:"workflow"`
	Status     string  `json:"status"`
	Error      *string `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// StepRecord is a row from the steps table. Detail holds the failure message
// or skip reason. StartedAt is null for steps that failed before dispatch
// (condition errors, data-flow resolution errors) or were skipped.
type StepRecord struct {
	RunID      string  `json:"run_id"`
	Step       string  `json:"step"`
	Status     string  `json:"status"`
	Detail     *string `json:"detail,omitempty"`
	Retries    int     `json:"retries"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

// Store is the SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);

		CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			retries INTEGER NOT NULL DEFAULT 0,
			started_at TEXT,
			finished_at TEXT,
			PRIMARY KEY (run_id, step),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun upserts a run row in the running state.
func (s *Store) StartRun(runID, workflow string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, workflow, status, started_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			workflow = excluded.workflow,
			status = excluded.status,
			started_at = excluded.started_at`,
		runID, workflow, StatusRunning, at.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// FinishRun marks a run terminal. errMsg is nil for completed runs.
func (s *Store) FinishRun(runID, status string, errMsg *string, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?",
		status, errMsg, at.Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// StartStep upserts a step row in the running state.
func (s *Store) StartStep(runID, step string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, step, status, started_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, step) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at`,
		runID, step, StatusRunning, at.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert step: %w", err)
	}
	return nil
}

// FinishStep records a step's terminal status. The upsert covers steps that
// fail before dispatch and so never got a StartStep.
func (s *Store) FinishStep(runID, step, status string, detail *string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, step, status, detail, finished_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, step) DO UPDATE SET
			status = excluded.status,
			detail = excluded.detail,
			finished_at = excluded.finished_at`,
		runID, step, status, detail, at.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("finish step: %w", err)
	}
	return nil
}

// BumpStepRetries increments a step's retry counter.
func (s *Store) BumpStepRetries(runID, step string) error {
	_, err := s.db.Exec(
		"UPDATE steps SET retries = retries + 1 WHERE run_id = ? AND step = ?",
		runID, step)
	if err != nil {
		return fmt.Errorf("bump retries: %w", err)
	}
	return nil
}

// ListRuns returns runs ordered newest first. A non-positive limit returns
// all runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT run_id, workflow, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Workflow, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its step records in execution order. A nil Run
// with nil error means the run is unknown.
func (s *Store) GetRun(runID string) (*Run, []StepRecord, error) {
	var r Run
	err := s.db.QueryRow(
		"SELECT run_id, workflow, status, error, started_at, finished_at FROM runs WHERE run_id = ?",
		runID).Scan(&r.RunID, &r.Workflow, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query run: %w", err)
	}

	// rowid order is insertion order, which is execution order: the recorder
	// consumes events synchronously.
	rows, err := s.db.Query(
		`SELECT run_id, step, status, detail, retries, started_at, finished_at
		 FROM steps WHERE run_id = ? ORDER BY rowid ASC`,
		runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []StepRecord
	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.RunID, &rec.Step, &rec.Status, &rec.Detail, &rec.Retries,
			&rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, nil, fmt.Errorf("scan step row: %w", err)
		}
		steps = append(steps, rec)
	}
	return &r, steps, rows.Err()
}
