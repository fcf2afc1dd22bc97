// Package workflow defines the serializable workflow model (steps and
// connections), structural validation, cycle detection, and execution-order
// derivation. The engine package consumes a compiled Graph built from a
// validated Definition.
package workflow

import "time"

// StepKind identifies the type of a step. The set of kinds is closed:
// the engine dispatches on it exhaustively and an unknown kind is a
// validation error, never a silent no-op.
type StepKind string

const (
	KindDataSource  StepKind = "data-source"
	KindAIProcessor StepKind = "ai-processor"
	KindTransform   StepKind = "transform"
	KindDelivery    StepKind = "delivery"
)

// String returns the string representation of the StepKind.
func (k StepKind) String() string {
	return string(k)
}

// KnownKind reports whether k is one of the four supported step kinds.
func KnownKind(k StepKind) bool {
	switch k {
	case KindDataSource, KindAIProcessor, KindTransform, KindDelivery:
		return true
	}
	return false
}

// Kinds returns the supported step kinds in their canonical order.
func Kinds() []StepKind {
	return []StepKind{KindDataSource, KindAIProcessor, KindTransform, KindDelivery}
}

// StepStatus is the lifecycle status of a step within its most recent run.
type StepStatus string

const (
	StepIdle      StepStatus = "idle"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// Position is the 2D layout position of a step in the visual editor.
// The engine never interprets it; it is carried for round-tripping.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Step is one node of a workflow definition. The definition fields
// (ID, Kind, Label, Config, Position) are immutable during a run; the
// execution fields (Status, LastRunAt, LastDuration, LastError) are
// mutated only by the engine.
type Step struct {
	ID       string         `json:"id" yaml:"id"`
	Kind     StepKind       `json:"kind" yaml:"kind"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Position *Position      `json:"position" yaml:"position"`

	Status       StepStatus    `json:"status,omitempty" yaml:"status,omitempty"`
	LastRunAt    *time.Time    `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty" yaml:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Connection is a directed edge between two step IDs.
type Connection struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Definition is the serializable representation of one workflow: a step
// set plus a connection set. Both JSON and YAML loading produce this type.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Steps       []Step            `json:"steps" yaml:"steps"`
	Connections []Connection      `json:"connections" yaml:"connections"`
}

// StepByID returns the step with the given ID, if present.
func (d *Definition) StepByID(id string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
