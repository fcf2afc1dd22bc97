package engine

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrRunNotFound  = errors.New("run not found")
	ErrStepNotFound = errors.New("step execution not found")
)

// RunStore is the persistence port for run and step-execution records.
// The engine emits, in order: one CreateRun, zero or more UpdateRun calls,
// and one CreateStepExecution plus one UpdateStepExecution per dispatched
// step. Writes must succeed before a run is considered terminal from the
// caller's perspective, so store failures surface as errors from Execute.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, bool, error)
	ListRuns(ctx context.Context) ([]Run, error)

	CreateStepExecution(ctx context.Context, exec StepExecution) error
	UpdateStepExecution(ctx context.Context, exec StepExecution) error
	ListStepExecutions(ctx context.Context, runID string) ([]StepExecution, error)
}
