package engine

import "github.com/reedworks/reedflow/workflow"

// runContext holds the mutable data-flow state of one run: each executed
// step's recorded output and the carried data for linear chains. It is
// confined to the goroutine driving the run.
type runContext struct {
	input   any
	carried any
	outputs map[string]any
}

func newRunContext(input any) *runContext {
	return &runContext{
		input:   input,
		carried: input,
		outputs: make(map[string]any),
	}
}

// record stores a step's output and advances the carried data.
func (rc *runContext) record(stepID string, output any) {
	rc.outputs[stepID] = output
	rc.carried = output
}

// effectiveInput resolves the input delivered to a step:
//   - zero incoming connections: the carried data (the run input for the
//     first step of a chain, the previous step's output further along);
//   - one incoming connection: exactly that predecessor's recorded output;
//   - fan-in: a map keyed by predecessor step ID, omitting predecessors
//     that never executed.
func (rc *runContext) effectiveInput(g *workflow.Graph, stepID string) any {
	preds := g.Predecessors(stepID)
	switch len(preds) {
	case 0:
		return rc.carried
	case 1:
		return rc.outputs[preds[0]]
	default:
		merged := make(map[string]any, len(preds))
		for _, pred := range preds {
			if out, ok := rc.outputs[pred]; ok {
				merged[pred] = out
			}
		}
		return merged
	}
}
