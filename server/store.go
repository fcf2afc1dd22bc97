package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reedworks/reedflow/workflow"
)

// Workflow store errors.
var (
	ErrWorkflowExists   = errors.New("workflow already exists")
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// WorkflowRecord is a stored workflow definition with lifecycle metadata.
type WorkflowRecord struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Definition *workflow.Definition `json:"definition"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	List(ctx context.Context) ([]WorkflowRecord, error)
	Get(ctx context.Context, id string) (WorkflowRecord, bool, error)
	Create(ctx context.Context, rec WorkflowRecord) error
	Update(ctx context.Context, rec WorkflowRecord) error
	Delete(ctx context.Context, id string) error
}

// MemoryWorkflowStore is an in-memory WorkflowStore, used in tests and
// when the server runs without a database.
type MemoryWorkflowStore struct {
	mu      sync.RWMutex
	records map[string]WorkflowRecord
	order   []string
}

// NewMemoryWorkflowStore creates an empty in-memory workflow store.
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{records: make(map[string]WorkflowRecord)}
}

func (s *MemoryWorkflowStore) List(ctx context.Context) ([]WorkflowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WorkflowRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *MemoryWorkflowStore) Get(ctx context.Context, id string) (WorkflowRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return WorkflowRecord{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryWorkflowStore) Create(ctx context.Context, rec WorkflowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return ErrWorkflowExists
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryWorkflowStore) Update(ctx context.Context, rec WorkflowRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		return ErrWorkflowNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryWorkflowStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; !exists {
		return ErrWorkflowNotFound
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Ensure interface compliance at compile time.
var _ WorkflowStore = (*MemoryWorkflowStore)(nil)
