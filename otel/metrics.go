package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/reedworks/reedflow/engine"
)

// MetricsHandler translates engine events into OpenTelemetry metrics.
// It records counters and histograms for step executions, failures, and
// run durations.
type MetricsHandler struct {
	stepExecutions metric.Int64Counter
	stepFailures   metric.Int64Counter
	stepDuration   metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	stepExec, err := meter.Int64Counter("reedflow.step.executions",
		metric.WithDescription("Number of step executions"),
	)
	if err != nil {
		return nil, err
	}

	stepFail, err := meter.Int64Counter("reedflow.step.failures",
		metric.WithDescription("Number of step failures"),
	)
	if err != nil {
		return nil, err
	}

	stepDur, err := meter.Float64Histogram("reedflow.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("reedflow.run.duration",
		metric.WithDescription("Duration of workflow run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		stepExecutions: stepExec,
		stepFailures:   stepFail,
		stepDuration:   stepDur,
		runDuration:    runDur,
	}, nil
}

// Handle processes an engine event and records the appropriate metrics.
// It implements engine.EventHandler semantics.
func (h *MetricsHandler) Handle(e engine.Event) {
	switch e.Kind {
	case engine.EventStepFinished:
		h.handleStepFinished(e)
	case engine.EventStepFailed:
		h.handleStepFailed(e)
	case engine.EventRunFinished, engine.EventRunCancelled:
		h.handleRunFinished(e)
	}
}

// handleStepFinished increments the execution counter and records duration.
func (h *MetricsHandler) handleStepFinished(e engine.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("step_kind", string(e.StepKind)),
		attribute.String("step_id", e.StepID),
	)
	h.stepExecutions.Add(ctx, 1, attrs)
	h.stepDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

// handleStepFailed increments the failure counter.
func (h *MetricsHandler) handleStepFailed(e engine.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("step_kind", string(e.StepKind)),
		attribute.String("step_id", e.StepID),
	)
	h.stepFailures.Add(ctx, 1, attrs)
}

// handleRunFinished records the workflow run duration.
func (h *MetricsHandler) handleRunFinished(e engine.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("run_id", e.RunID),
	)
	h.runDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}
