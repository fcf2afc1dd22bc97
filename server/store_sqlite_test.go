package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reedworks/reedflow/workflow"
)

func newSQLiteStore(t *testing.T) *SQLiteWorkflowStore {
	t.Helper()
	s, err := NewSQLiteWorkflowStore(SQLiteWorkflowStoreConfig{
		DSN: filepath.Join(t.TempDir(), "workflows.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteWorkflowStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) WorkflowRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return WorkflowRecord{
		ID:   id,
		Name: "sample",
		Definition: &workflow.Definition{
			ID: id,
			Steps: []workflow.Step{
				{ID: "a", Kind: workflow.KindTransform, Config: map[string]any{"operation": "pick", "script": "x"}},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteWorkflowStore_RoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, sampleRecord("wf-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec, ok, err := s.Get(ctx, "wf-1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok=%v, err=%v", ok, err)
	}
	if rec.Name != "sample" || rec.Definition == nil || len(rec.Definition.Steps) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Definition.Steps[0].Kind != workflow.KindTransform {
		t.Errorf("step kind = %q", rec.Definition.Steps[0].Kind)
	}
}

func TestSQLiteWorkflowStore_DuplicateCreate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, sampleRecord("wf-1")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, sampleRecord("wf-1")); !errors.Is(err, ErrWorkflowExists) {
		t.Errorf("Create() duplicate error = %v, want ErrWorkflowExists", err)
	}
}

func TestSQLiteWorkflowStore_UpdateAndDelete(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	rec := sampleRecord("wf-1")
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec.Name = "renamed"
	rec.UpdatedAt = time.Now().UTC()
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _, _ := s.Get(ctx, "wf-1")
	if got.Name != "renamed" {
		t.Errorf("name = %q", got.Name)
	}

	if err := s.Delete(ctx, "wf-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, "wf-1"); ok {
		t.Error("record still present after delete")
	}
	if err := s.Delete(ctx, "wf-1"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("Delete() missing error = %v, want ErrWorkflowNotFound", err)
	}
}

func TestSQLiteWorkflowStore_ListOrder(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"wf-1", "wf-2", "wf-3"} {
		if err := s.Create(ctx, sampleRecord(id)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i, want := range []string{"wf-1", "wf-2", "wf-3"} {
		if records[i].ID != want {
			t.Errorf("records[%d] = %q, want %q", i, records[i].ID, want)
		}
	}
}

func TestSQLiteWorkflowStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteWorkflowStore(SQLiteWorkflowStoreConfig{}); err == nil {
		t.Error("expected error for empty DSN")
	}
}
