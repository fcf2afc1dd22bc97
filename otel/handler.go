package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/reedworks/reedflow/engine"
)

// Handler builds a single engine.EventHandler that feeds both the
// tracing and metrics handlers. Either provider may be nil to disable
// that signal.
func Handler(tracer trace.Tracer, meter metric.Meter) (engine.EventHandler, error) {
	handlers := make([]engine.EventHandler, 0, 2)

	if tracer != nil {
		tracing := NewTracingHandler(tracer)
		handlers = append(handlers, tracing.Handle)
	}
	if meter != nil {
		metrics, err := NewMetricsHandler(meter)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, metrics.Handle)
	}

	return engine.MultiEventHandler(handlers...), nil
}
