// Package engine executes compiled workflow graphs: it derives the
// execution order, dispatches each step to the capability registered for
// its kind, propagates step outputs to successors, and records runs and
// step executions through a persistence port.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reedworks/reedflow/workflow"
)

// Capability errors.
var (
	ErrUnknownKind   = errors.New("no capability registered for step kind")
	ErrNilCapability = errors.New("cannot register nil capability")
)

// Capability executes one step kind. Implementations receive the step's
// configuration payload and its effective input, and return an opaque
// output. The engine never inspects either payload beyond passing them
// through; blocking work must honor ctx.
type Capability interface {
	Execute(ctx context.Context, config map[string]any, input any) (any, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, config map[string]any, input any) (any, error)

// Execute calls the wrapped function.
func (f CapabilityFunc) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	return f(ctx, config, input)
}

// Registry maps step kinds to capability implementations. The kind set is
// closed: only the four supported kinds can be registered.
type Registry struct {
	mu   sync.RWMutex
	caps map[workflow.StepKind]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		caps: make(map[workflow.StepKind]Capability, 4),
	}
}

// Register binds a capability to a step kind, replacing any previous
// binding. Unknown kinds are rejected.
func (r *Registry) Register(kind workflow.StepKind, impl Capability) error {
	if !workflow.KnownKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if impl == nil {
		return ErrNilCapability
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[kind] = impl
	return nil
}

// Resolve returns the capability registered for a kind.
func (r *Registry) Resolve(kind workflow.StepKind) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.caps[kind]
	return impl, ok
}

// Kinds returns the registered kinds in canonical order.
func (r *Registry) Kinds() []workflow.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]workflow.StepKind, 0, len(r.caps))
	for _, kind := range workflow.Kinds() {
		if _, ok := r.caps[kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

// Ensure interface compliance at compile time.
var _ Capability = (CapabilityFunc)(nil)
