package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reedworks/reedflow/workflow"
)

const workflowSQLiteSchema = `
CREATE TABLE IF NOT EXISTS workflows (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    definition TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteWorkflowStoreConfig configures the SQLite workflow store.
type SQLiteWorkflowStoreConfig struct {
	DSN string
}

// SQLiteWorkflowStore persists workflow definitions in SQLite.
type SQLiteWorkflowStore struct {
	db *sql.DB
}

// NewSQLiteWorkflowStore opens (or creates) a SQLite-backed workflow store.
func NewSQLiteWorkflowStore(cfg SQLiteWorkflowStoreConfig) (*SQLiteWorkflowStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("workflow store sqlite dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("workflow store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("workflow store set WAL mode: %w", err)
	}
	if _, err := db.Exec(workflowSQLiteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("workflow store create schema: %w", err)
	}

	return &SQLiteWorkflowStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteWorkflowStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteWorkflowStore) List(ctx context.Context) ([]WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, definition, created_at, updated_at
FROM workflows ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("workflow store list: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		rec, err := scanWorkflowRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workflow store list: %w", err)
	}
	return records, nil
}

func (s *SQLiteWorkflowStore) Get(ctx context.Context, id string) (WorkflowRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, definition, created_at, updated_at
FROM workflows WHERE id = ?`, id)

	rec, err := scanWorkflowRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkflowRecord{}, false, nil
	}
	if err != nil {
		return WorkflowRecord{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteWorkflowStore) Create(ctx context.Context, rec WorkflowRecord) error {
	definition, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("workflow store create: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO workflows (id, name, definition, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(definition),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrWorkflowExists
		}
		return fmt.Errorf("workflow store create: %w", err)
	}
	return nil
}

func (s *SQLiteWorkflowStore) Update(ctx context.Context, rec WorkflowRecord) error {
	definition, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("workflow store update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE workflows SET name = ?, definition = ?, updated_at = ?
WHERE id = ?`,
		rec.Name, string(definition),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano), rec.ID)
	if err != nil {
		return fmt.Errorf("workflow store update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("workflow store update: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *SQLiteWorkflowStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("workflow store delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("workflow store delete: %w", err)
	}
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func scanWorkflowRecord(row interface{ Scan(...any) error }) (WorkflowRecord, error) {
	var rec WorkflowRecord
	var definition, createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Name, &definition, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkflowRecord{}, err
		}
		return WorkflowRecord{}, fmt.Errorf("workflow store scan: %w", err)
	}

	var def workflow.Definition
	if err := json.Unmarshal([]byte(definition), &def); err != nil {
		return WorkflowRecord{}, fmt.Errorf("workflow store scan definition: %w", err)
	}
	rec.Definition = &def

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return WorkflowRecord{}, fmt.Errorf("workflow store scan created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return WorkflowRecord{}, fmt.Errorf("workflow store scan updated_at: %w", err)
	}
	return rec, nil
}

// Ensure interface compliance at compile time.
var _ WorkflowStore = (*SQLiteWorkflowStore)(nil)
