package engine

import (
	"time"

	"github.com/reedworks/reedflow/workflow"
)

// RunStatus is the overall status of one workflow run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// StepState is the dispatch state of one step within a run. The engine
// runs steps sequentially today, but the state machine is explicit so a
// concurrent dispatcher can substitute without touching data-flow
// resolution, which depends only on predecessor completion.
type StepState string

const (
	StepPending    StepState = "pending"
	StepDispatched StepState = "running"
	StepSucceeded  StepState = "success"
	StepFailed     StepState = "error"
	StepCancelled  StepState = "cancelled"
)

// Run is the record of one invocation of the engine against a graph.
// It is created at invocation start and finalized exactly once.
type Run struct {
	ID          string        `json:"id"`
	WorkflowID  string        `json:"workflow_id,omitempty"`
	Status      RunStatus     `json:"status"`
	Input       any           `json:"input,omitempty"`
	Output      any           `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// StepExecution is the record of one step's execution within a run.
// Records are created immediately before dispatch and finalized
// immediately after the capability returns; together they form the
// authoritative progress ledger for the run.
type StepExecution struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	StepID      string            `json:"step_id"`
	Kind        workflow.StepKind `json:"kind"`
	Status      StepState         `json:"status"`
	Input       any               `json:"input,omitempty"`
	Output      any               `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Duration    time.Duration     `json:"duration,omitempty"`
}
