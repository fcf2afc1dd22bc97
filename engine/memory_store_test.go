package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/reedworks/reedflow/workflow"
)

func TestMemoryStore_RunLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	run := Run{ID: "r1", WorkflowID: "wf", Status: RunRunning, StartedAt: time.Now()}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, ok, err := s.GetRun(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("GetRun() = ok=%v, err=%v", ok, err)
	}
	if got.Status != RunRunning {
		t.Errorf("status = %q, want running", got.Status)
	}

	run.Status = RunCompleted
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun() error = %v", err)
	}
	got, _, _ = s.GetRun(ctx, "r1")
	if got.Status != RunCompleted {
		t.Errorf("status after update = %q, want completed", got.Status)
	}
}

func TestMemoryStore_CreateRunDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateRun(ctx, Run{ID: "r1"}); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := s.CreateRun(ctx, Run{ID: "r1"}); err == nil {
		t.Error("duplicate CreateRun() should fail")
	}
}

func TestMemoryStore_GetRunMissing(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.GetRun(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if ok {
		t.Error("GetRun() on missing run reported ok")
	}
}

func TestMemoryStore_UpdateRunNotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateRun(context.Background(), Run{ID: "missing"})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("UpdateRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestMemoryStore_ListRunsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		s.CreateRun(ctx, Run{ID: id})
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if runs[i].ID != want {
			t.Errorf("runs[%d] = %q, want %q", i, runs[i].ID, want)
		}
	}
}

func TestMemoryStore_StepExecutions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.CreateRun(ctx, Run{ID: "r1"})

	exec := StepExecution{ID: "e1", RunID: "r1", StepID: "a", Kind: workflow.KindTransform, Status: StepDispatched}
	if err := s.CreateStepExecution(ctx, exec); err != nil {
		t.Fatalf("CreateStepExecution() error = %v", err)
	}
	exec.Status = StepSucceeded
	exec.Output = "done"
	if err := s.UpdateStepExecution(ctx, exec); err != nil {
		t.Fatalf("UpdateStepExecution() error = %v", err)
	}

	execs, err := s.ListStepExecutions(ctx, "r1")
	if err != nil {
		t.Fatalf("ListStepExecutions() error = %v", err)
	}
	if len(execs) != 1 {
		t.Fatalf("len = %d, want 1", len(execs))
	}
	if execs[0].Status != StepSucceeded || execs[0].Output != "done" {
		t.Errorf("exec = %+v", execs[0])
	}
}

func TestMemoryStore_UpdateStepExecutionNotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateStepExecution(context.Background(), StepExecution{ID: "missing", RunID: "r1"})
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("UpdateStepExecution() error = %v, want ErrStepNotFound", err)
	}
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.CreateRun(ctx, Run{ID: "r1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("CreateRun() error = %v, want context.Canceled", err)
	}
}
