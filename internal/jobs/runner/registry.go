package runner

import (
	"sort"

	"github.com/monitorul/subjobs/internal/jobs/domain"
)

// Registry maps job names to their workflow implementations. It is populated
// once at startup and read-only afterwards; adding a job means registering
// another implementation, not editing dispatch code.
type Registry struct {
	workflows map[string]domain.BatchWorkflow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]domain.BatchWorkflow),
	}
}

// Register adds a workflow under its own name. Re-registering a name
// replaces the previous implementation.
func (r *Registry) Register(wf domain.BatchWorkflow) {
	r.workflows[wf.Name()] = wf
}

// Lookup returns the workflow for a job name.
func (r *Registry) Lookup(name string) (domain.BatchWorkflow, bool) {
	wf, ok := r.workflows[name]
	return wf, ok
}

// Names returns the registered job names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
