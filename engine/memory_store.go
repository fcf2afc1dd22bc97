package engine

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory RunStore. It preserves insertion order and
// is safe for concurrent use. Tests and the CLI use it as the default
// persistence port; the history package provides the SQLite-backed one.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]Run
	runOrder  []string
	execs     map[string]StepExecution
	execOrder map[string][]string // runID -> exec IDs in creation order
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]Run),
		execs:     make(map[string]StepExecution),
		execOrder: make(map[string][]string),
	}
}

// CreateRun stores a new run record.
func (s *MemoryStore) CreateRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %q already exists", run.ID)
	}
	s.runs[run.ID] = run
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// UpdateRun replaces an existing run record.
func (s *MemoryStore) UpdateRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun returns one run by ID.
func (s *MemoryStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

// ListRuns returns all runs in creation order.
func (s *MemoryStore) ListRuns(ctx context.Context) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runOrder))
	for _, id := range s.runOrder {
		out = append(out, s.runs[id])
	}
	return out, nil
}

// CreateStepExecution stores a new step execution record.
func (s *MemoryStore) CreateStepExecution(ctx context.Context, exec StepExecution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.execs[exec.ID]; exists {
		return fmt.Errorf("step execution %q already exists", exec.ID)
	}
	s.execs[exec.ID] = exec
	s.execOrder[exec.RunID] = append(s.execOrder[exec.RunID], exec.ID)
	return nil
}

// UpdateStepExecution replaces an existing step execution record.
func (s *MemoryStore) UpdateStepExecution(ctx context.Context, exec StepExecution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.execs[exec.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrStepNotFound, exec.ID)
	}
	s.execs[exec.ID] = exec
	return nil
}

// ListStepExecutions returns a run's step executions in dispatch order.
func (s *MemoryStore) ListStepExecutions(ctx context.Context, runID string) ([]StepExecution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.execOrder[runID]
	out := make([]StepExecution, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.execs[id])
	}
	return out, nil
}

// Ensure interface compliance at compile time.
var _ RunStore = (*MemoryStore)(nil)
