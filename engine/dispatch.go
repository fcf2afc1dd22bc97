package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/reedworks/reedflow/workflow"
)

// dispatch routes one step to the capability registered for its kind and
// captures wall-clock timing. It performs no business logic of its own;
// an unknown kind at dispatch time is a step failure like any other.
func (e *Engine) dispatch(ctx context.Context, step *workflow.Step, input any) (any, time.Duration, error) {
	impl, ok := e.registry.Resolve(step.Kind)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownKind, step.Kind)
	}

	start := e.now()
	output, err := impl.Execute(ctx, step.Config, input)
	elapsed := e.now().Sub(start)

	if err != nil {
		return nil, elapsed, err
	}
	return output, elapsed, nil
}
