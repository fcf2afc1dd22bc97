package engine

import (
	"time"

	"github.com/reedworks/reedflow/workflow"
)

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventRunStarted is emitted when a run begins.
	EventRunStarted EventKind = "run_started"

	// EventStepStarted is emitted when a step is dispatched.
	EventStepStarted EventKind = "step_started"

	// EventStepFinished is emitted when a step completes successfully.
	EventStepFinished EventKind = "step_finished"

	// EventStepFailed is emitted when a step's capability returns an error.
	EventStepFailed EventKind = "step_failed"

	// EventRunFinished is emitted when a run reaches completed or error.
	EventRunFinished EventKind = "run_finished"

	// EventRunCancelled is emitted when a cancellation request takes effect.
	EventRunCancelled EventKind = "run_cancelled"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what happened during execution.
// Events should stay small; full payloads live in the run store.
type Event struct {
	Kind     EventKind
	RunID    string
	StepID   string
	StepKind workflow.StepKind
	Time     time.Time
	Elapsed  time.Duration
	Payload  map[string]any
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithStep sets the step information on the event.
func (e Event) WithStep(stepID string, kind workflow.StepKind) Event {
	e.StepID = stepID
	e.StepKind = kind
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventHandler receives events during execution.
type EventHandler func(Event)

// MultiEventHandler fans one event out to several handlers, skipping nils.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
