package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reedworks/reedflow/workflow"
)

// Engine errors. Workflow-level failures (step errors, unorderable
// graphs) are reported on the run record, not as returned errors;
// returned errors are reserved for infrastructure problems such as the
// persistence port refusing a write.
var ErrNilGraph = errors.New("cannot execute nil graph")

// schedulingErrMessage is the run error recorded when the derived order
// omits steps. Kept stable because callers match on it.
const schedulingErrMessage = "workflow contains cycles or invalid dependencies"

// Config configures an Engine.
type Config struct {
	Registry *Registry
	Store    RunStore     // defaults to an in-memory store
	Logger   *slog.Logger // defaults to slog.Default()
	Now      func() time.Time
}

// Engine orchestrates scheduling, dispatch, and data-flow propagation for
// workflow runs. One Engine may drive many runs; each run executes its
// steps sequentially in topological order.
type Engine struct {
	registry *Registry
	store    RunStore
	logger   *slog.Logger
	nowFn    func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	cancelled bool
}

// New creates an Engine from the given configuration.
func New(cfg Config) *Engine {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Engine{
		registry: registry,
		store:    store,
		logger:   logger,
		nowFn:    nowFn,
		active:   make(map[string]*activeRun),
	}
}

// Store returns the engine's persistence port.
func (e *Engine) Store() RunStore {
	return e.store
}

func (e *Engine) now() time.Time {
	return e.nowFn()
}

// RunOptions controls one execution.
type RunOptions struct {
	// EventHandler receives engine events during the run.
	EventHandler EventHandler
}

// Cancel requests best-effort cancellation of a running run. It returns
// true if the run was active and not already flagged. A step capability
// already in flight is not interrupted; its late result is discarded and
// the run transitions to cancelled at the next checkpoint.
func (e *Engine) Cancel(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ar, ok := e.active[runID]
	if !ok || ar.cancelled {
		return false
	}
	ar.cancelled = true
	return true
}

func (e *Engine) registerRun(runID string) {
	e.mu.Lock()
	e.active[runID] = &activeRun{}
	e.mu.Unlock()
}

func (e *Engine) unregisterRun(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

func (e *Engine) isCancelled(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ar, ok := e.active[runID]
	return ok && ar.cancelled
}

// Execute runs a compiled graph once. The call is synchronous: the run
// reaches a terminal state before it returns. A failed workflow still
// yields a complete run record (status "error", message set); callers
// inspect run and step status rather than the returned error, which only
// reports infrastructure failures.
func (e *Engine) Execute(ctx context.Context, g *workflow.Graph, input any, opts RunOptions) (*Run, error) {
	if g == nil {
		return nil, ErrNilGraph
	}

	emit := func(ev Event) {
		if opts.EventHandler != nil {
			opts.EventHandler(ev)
		}
	}

	startedAt := e.now().UTC()
	run := Run{
		ID:         uuid.NewString(),
		WorkflowID: g.ID(),
		Status:     RunRunning,
		Input:      input,
		StartedAt:  startedAt,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	e.registerRun(run.ID)
	defer e.unregisterRun(run.ID)

	emit(NewEvent(EventRunStarted, run.ID).
		WithPayload("workflow", g.ID()).
		WithPayload("steps", g.Len()))

	order := g.ExecutionOrder()
	if len(order) != g.Len() {
		e.logger.Warn("run unorderable",
			"run_id", run.ID, "ordered", len(order), "steps", g.Len())
		return e.finishRun(ctx, run, RunFailed, nil, schedulingErrMessage, startedAt, emit)
	}

	rc := newRunContext(input)

	for _, stepID := range order {
		if e.isCancelled(run.ID) || ctx.Err() != nil {
			return e.finishRun(ctx, run, RunCancelled, nil, "", startedAt, emit)
		}

		step, ok := g.StepByID(stepID)
		if !ok {
			// Order came from this graph; a miss means the graph was
			// mutated mid-run.
			return e.finishRun(ctx, run, RunFailed, nil, schedulingErrMessage, startedAt, emit)
		}

		exec, err := e.executeStep(ctx, g, run.ID, step, rc, emit)
		if err != nil {
			return &run, err
		}

		switch exec.Status {
		case StepSucceeded:
			continue
		case StepCancelled:
			return e.finishRun(ctx, run, RunCancelled, nil, "", startedAt, emit)
		default:
			// Fail fast: the step's message becomes the run's message and
			// no further steps execute.
			return e.finishRun(ctx, run, RunFailed, nil, exec.Error, startedAt, emit)
		}
	}

	return e.finishRun(ctx, run, RunCompleted, rc.carried, "", startedAt, emit)
}

// executeStep creates, dispatches, and finalizes one StepExecution.
// The returned error reports store failures only; capability failures are
// reflected in the record's status.
func (e *Engine) executeStep(
	ctx context.Context,
	g *workflow.Graph,
	runID string,
	step *workflow.Step,
	rc *runContext,
	emit func(Event),
) (StepExecution, error) {
	input := rc.effectiveInput(g, step.ID)
	startedAt := e.now().UTC()
	// Finalization writes use a detached context so that a context
	// cancellation mid-step still leaves a finalized ledger entry.
	storeCtx := context.WithoutCancel(ctx)

	exec := StepExecution{
		ID:        uuid.NewString(),
		RunID:     runID,
		StepID:    step.ID,
		Kind:      step.Kind,
		Status:    StepDispatched,
		Input:     input,
		StartedAt: startedAt,
	}
	if err := e.store.CreateStepExecution(ctx, exec); err != nil {
		return exec, err
	}

	step.Status = workflow.StepRunning
	emit(NewEvent(EventStepStarted, runID).WithStep(step.ID, step.Kind))

	output, elapsed, err := e.dispatch(ctx, step, input)

	completedAt := e.now().UTC()
	exec.CompletedAt = &completedAt
	exec.Duration = elapsed
	step.LastRunAt = &completedAt
	step.LastDuration = elapsed

	if e.isCancelled(runID) {
		// A cancellation arrived while the capability was in flight; the
		// result, whatever it was, is discarded.
		exec.Status = StepCancelled
		exec.Output = nil
		step.Status = workflow.StepIdle
		if storeErr := e.store.UpdateStepExecution(storeCtx, exec); storeErr != nil {
			return exec, storeErr
		}
		return exec, nil
	}

	if err != nil {
		exec.Status = StepFailed
		exec.Error = err.Error()
		step.Status = workflow.StepFailed
		step.LastError = err.Error()
		if storeErr := e.store.UpdateStepExecution(storeCtx, exec); storeErr != nil {
			return exec, storeErr
		}
		e.logger.Debug("step failed",
			"run_id", runID, "step_id", step.ID, "kind", step.Kind, "error", err)
		emit(NewEvent(EventStepFailed, runID).
			WithStep(step.ID, step.Kind).
			WithElapsed(elapsed).
			WithPayload("error", err.Error()))
		return exec, nil
	}

	exec.Status = StepSucceeded
	exec.Output = output
	step.Status = workflow.StepSucceeded
	step.LastError = ""
	if storeErr := e.store.UpdateStepExecution(storeCtx, exec); storeErr != nil {
		return exec, storeErr
	}
	rc.record(step.ID, output)
	emit(NewEvent(EventStepFinished, runID).
		WithStep(step.ID, step.Kind).
		WithElapsed(elapsed))
	return exec, nil
}

// finishRun transitions a run to its terminal state and persists it.
func (e *Engine) finishRun(
	ctx context.Context,
	run Run,
	status RunStatus,
	output any,
	errMsg string,
	startedAt time.Time,
	emit func(Event),
) (*Run, error) {
	// The terminal write must land even when the caller's context is
	// already cancelled, or the ledger would show the run as running
	// forever.
	ctx = context.WithoutCancel(ctx)

	completedAt := e.now().UTC()
	run.Status = status
	run.Output = output
	run.Error = errMsg
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(startedAt)

	if err := e.store.UpdateRun(ctx, run); err != nil {
		return &run, err
	}

	kind := EventRunFinished
	if status == RunCancelled {
		kind = EventRunCancelled
	}
	ev := NewEvent(kind, run.ID).
		WithElapsed(run.Duration).
		WithPayload("status", string(status))
	if errMsg != "" {
		ev = ev.WithPayload("error", errMsg)
	}
	emit(ev)

	e.logger.Info("run finished",
		"run_id", run.ID, "workflow", run.WorkflowID,
		"status", string(status), "duration", run.Duration)

	return &run, nil
}
