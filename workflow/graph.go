package workflow

import (
	"errors"
	"fmt"
)

// Graph compilation errors.
var (
	ErrEmptyGraph     = errors.New("workflow has no steps")
	ErrEmptyStepID    = errors.New("step has an empty ID")
	ErrDuplicateStep  = errors.New("duplicate step ID")
	ErrUnknownStep    = errors.New("connection references unknown step")
	ErrSelfConnection = errors.New("self-referencing connection")
	ErrDuplicateConn  = errors.New("duplicate connection ID")
)

// Graph is the compiled, immutable form of a validated Definition.
// Steps are indexed by ID with insertion order preserved, and the
// successor/predecessor relations are precomputed for scheduling and
// data-flow resolution.
type Graph struct {
	id           string
	steps        map[string]*Step
	stepOrder    []string
	connections  []Connection
	successors   map[string][]string
	predecessors map[string][]string
}

// Compile builds a Graph from a definition, enforcing the structural
// invariants that make execution well-defined: non-empty step set, unique
// step and connection IDs, resolvable endpoints, no self-loops. Cycles are
// deliberately not rejected here; the scheduler surfaces them at run time.
//
// The graph owns a private copy of each step, so graphs compiled from one
// definition can execute concurrently: engine writes to step execution
// state never reach the definition or a sibling graph.
func Compile(def *Definition) (*Graph, error) {
	if def == nil || len(def.Steps) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		id:           def.ID,
		steps:        make(map[string]*Step, len(def.Steps)),
		stepOrder:    make([]string, 0, len(def.Steps)),
		connections:  make([]Connection, 0, len(def.Connections)),
		successors:   make(map[string][]string, len(def.Steps)),
		predecessors: make(map[string][]string, len(def.Steps)),
	}

	for i := range def.Steps {
		step := new(Step)
		*step = def.Steps[i]
		if step.ID == "" {
			return nil, fmt.Errorf("%w: step at index %d", ErrEmptyStepID, i)
		}
		if _, exists := g.steps[step.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID)
		}
		g.steps[step.ID] = step
		g.stepOrder = append(g.stepOrder, step.ID)
	}

	connIDs := make(map[string]bool, len(def.Connections))
	for _, c := range def.Connections {
		if c.ID != "" {
			if connIDs[c.ID] {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateConn, c.ID)
			}
			connIDs[c.ID] = true
		}
		if _, ok := g.steps[c.Source]; !ok {
			return nil, fmt.Errorf("%w: source %q", ErrUnknownStep, c.Source)
		}
		if _, ok := g.steps[c.Target]; !ok {
			return nil, fmt.Errorf("%w: target %q", ErrUnknownStep, c.Target)
		}
		if c.Source == c.Target {
			return nil, fmt.Errorf("%w: %s", ErrSelfConnection, c.Source)
		}

		g.connections = append(g.connections, c)
		g.successors[c.Source] = append(g.successors[c.Source], c.Target)
		g.predecessors[c.Target] = append(g.predecessors[c.Target], c.Source)
	}

	return g, nil
}

// ID returns the workflow identifier.
func (g *Graph) ID() string {
	return g.id
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	return len(g.stepOrder)
}

// Steps returns all steps in insertion order.
func (g *Graph) Steps() []*Step {
	steps := make([]*Step, 0, len(g.stepOrder))
	for _, id := range g.stepOrder {
		steps = append(steps, g.steps[id])
	}
	return steps
}

// StepByID retrieves a step by its ID.
func (g *Graph) StepByID(id string) (*Step, bool) {
	step, ok := g.steps[id]
	return step, ok
}

// Connections returns all connections.
func (g *Graph) Connections() []Connection {
	return g.connections
}

// Successors returns the IDs of steps directly downstream of the given step.
func (g *Graph) Successors(stepID string) []string {
	return g.successors[stepID]
}

// Predecessors returns the IDs of steps directly upstream of the given step.
func (g *Graph) Predecessors(stepID string) []string {
	return g.predecessors[stepID]
}

// ExecutionOrder derives the topological execution order for the graph.
// A result shorter than Len() means the graph contains a cycle.
func (g *Graph) ExecutionOrder() []string {
	inDegree := make(map[string]int, len(g.stepOrder))
	for _, id := range g.stepOrder {
		inDegree[id] = len(g.predecessors[id])
	}

	queue := make([]string, 0, len(g.stepOrder))
	for _, id := range g.stepOrder {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.stepOrder))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, succ := range g.successors[current] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	return order
}
