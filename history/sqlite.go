// Package history persists run and step-execution records in SQLite.
// It is the durable implementation of the engine's RunStore port; the
// engine package's MemoryStore covers tests and one-shot CLI runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reedworks/reedflow/engine"
	"github.com/reedworks/reedflow/workflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    workflow_id  TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    input        TEXT,
    output       TEXT,
    error        TEXT NOT NULL DEFAULT '',
    started_at   TEXT NOT NULL,
    completed_at TEXT,
    duration_ns  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS step_executions (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    step_id      TEXT NOT NULL,
    kind         TEXT NOT NULL,
    status       TEXT NOT NULL,
    input        TEXT,
    output       TEXT,
    error        TEXT NOT NULL DEFAULT '',
    started_at   TEXT NOT NULL,
    completed_at TEXT,
    duration_ns  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_step_executions_run ON step_executions(run_id);
`

// StoreConfig configures the SQLite run store.
type StoreConfig struct {
	DSN string
}

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite-backed run store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("run store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("run store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run store set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run store enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run store create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *Store) CreateRun(ctx context.Context, run engine.Run) error {
	input, err := encodePayload(run.Input)
	if err != nil {
		return fmt.Errorf("run store create run: %w", err)
	}
	output, err := encodePayload(run.Output)
	if err != nil {
		return fmt.Errorf("run store create run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, workflow_id, status, input, output, error, started_at, completed_at, duration_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, string(run.Status), input, output, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano), encodeTime(run.CompletedAt), int64(run.Duration))
	if err != nil {
		return fmt.Errorf("run store create run: %w", err)
	}
	return nil
}

// UpdateRun replaces an existing run record.
func (s *Store) UpdateRun(ctx context.Context, run engine.Run) error {
	output, err := encodePayload(run.Output)
	if err != nil {
		return fmt.Errorf("run store update run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, output = ?, error = ?, completed_at = ?, duration_ns = ?
WHERE id = ?`,
		string(run.Status), output, run.Error, encodeTime(run.CompletedAt), int64(run.Duration), run.ID)
	if err != nil {
		return fmt.Errorf("run store update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run store update run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", engine.ErrRunNotFound, run.ID)
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (engine.Run, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, workflow_id, status, input, output, error, started_at, completed_at, duration_ns
FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Run{}, false, nil
	}
	if err != nil {
		return engine.Run{}, false, err
	}
	return run, true, nil
}

// ListRuns returns all runs in creation order.
func (s *Store) ListRuns(ctx context.Context) ([]engine.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, workflow_id, status, input, output, error, started_at, completed_at, duration_ns
FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("run store list runs: %w", err)
	}
	defer rows.Close()

	var out []engine.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run store list runs: %w", err)
	}
	return out, nil
}

// CreateStepExecution inserts a new step execution record.
func (s *Store) CreateStepExecution(ctx context.Context, exec engine.StepExecution) error {
	input, err := encodePayload(exec.Input)
	if err != nil {
		return fmt.Errorf("run store create step: %w", err)
	}
	output, err := encodePayload(exec.Output)
	if err != nil {
		return fmt.Errorf("run store create step: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO step_executions (id, run_id, step_id, kind, status, input, output, error, started_at, completed_at, duration_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RunID, exec.StepID, string(exec.Kind), string(exec.Status),
		input, output, exec.Error,
		exec.StartedAt.UTC().Format(time.RFC3339Nano), encodeTime(exec.CompletedAt), int64(exec.Duration))
	if err != nil {
		return fmt.Errorf("run store create step: %w", err)
	}
	return nil
}

// UpdateStepExecution replaces an existing step execution record.
func (s *Store) UpdateStepExecution(ctx context.Context, exec engine.StepExecution) error {
	output, err := encodePayload(exec.Output)
	if err != nil {
		return fmt.Errorf("run store update step: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE step_executions
SET status = ?, output = ?, error = ?, completed_at = ?, duration_ns = ?
WHERE id = ?`,
		string(exec.Status), output, exec.Error, encodeTime(exec.CompletedAt), int64(exec.Duration), exec.ID)
	if err != nil {
		return fmt.Errorf("run store update step: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("run store update step: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", engine.ErrStepNotFound, exec.ID)
	}
	return nil
}

// ListStepExecutions returns a run's step executions in dispatch order.
func (s *Store) ListStepExecutions(ctx context.Context, runID string) ([]engine.StepExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, step_id, kind, status, input, output, error, started_at, completed_at, duration_ns
FROM step_executions WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("run store list steps: %w", err)
	}
	defer rows.Close()

	var out []engine.StepExecution
	for rows.Next() {
		exec, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("run store list steps: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (engine.Run, error) {
	var run engine.Run
	var status, startedAt string
	var input, output, completedAt sql.NullString
	var durationNS int64

	err := row.Scan(&run.ID, &run.WorkflowID, &status, &input, &output,
		&run.Error, &startedAt, &completedAt, &durationNS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Run{}, err
		}
		return engine.Run{}, fmt.Errorf("run store scan run: %w", err)
	}

	run.Status = engine.RunStatus(status)
	run.Duration = time.Duration(durationNS)
	if run.Input, err = decodePayload(input); err != nil {
		return engine.Run{}, fmt.Errorf("run store scan run input: %w", err)
	}
	if run.Output, err = decodePayload(output); err != nil {
		return engine.Run{}, fmt.Errorf("run store scan run output: %w", err)
	}
	if run.StartedAt, err = decodeTime(startedAt); err != nil {
		return engine.Run{}, fmt.Errorf("run store scan run started_at: %w", err)
	}
	if run.CompletedAt, err = decodeNullTime(completedAt); err != nil {
		return engine.Run{}, fmt.Errorf("run store scan run completed_at: %w", err)
	}
	return run, nil
}

func scanStepExecution(row rowScanner) (engine.StepExecution, error) {
	var exec engine.StepExecution
	var kind, status, startedAt string
	var input, output, completedAt sql.NullString
	var durationNS int64

	err := row.Scan(&exec.ID, &exec.RunID, &exec.StepID, &kind, &status,
		&input, &output, &exec.Error, &startedAt, &completedAt, &durationNS)
	if err != nil {
		return engine.StepExecution{}, fmt.Errorf("run store scan step: %w", err)
	}

	exec.Kind = workflow.StepKind(kind)
	exec.Status = engine.StepState(status)
	exec.Duration = time.Duration(durationNS)
	if exec.Input, err = decodePayload(input); err != nil {
		return engine.StepExecution{}, fmt.Errorf("run store scan step input: %w", err)
	}
	if exec.Output, err = decodePayload(output); err != nil {
		return engine.StepExecution{}, fmt.Errorf("run store scan step output: %w", err)
	}
	if exec.StartedAt, err = decodeTime(startedAt); err != nil {
		return engine.StepExecution{}, fmt.Errorf("run store scan step started_at: %w", err)
	}
	if exec.CompletedAt, err = decodeNullTime(completedAt); err != nil {
		return engine.StepExecution{}, fmt.Errorf("run store scan step completed_at: %w", err)
	}
	return exec, nil
}

// encodePayload serializes an opaque payload as JSON; nil stays NULL.
func encodePayload(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode payload: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodePayload(s sql.NullString) (any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func decodeNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure interface compliance at compile time.
var _ engine.RunStore = (*Store)(nil)
