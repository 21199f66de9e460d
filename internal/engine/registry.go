package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// Registry holds the workflow definitions this process can execute, keyed
// by workflow ID.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*hookflow.Workflow
}

func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*hookflow.Workflow)}
}

// Register adds a workflow definition. Re-registering an ID is an error.
func (r *Registry) Register(wf *hookflow.Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("register workflow: empty id")
	}
	if wf.Handler == nil {
		return fmt.Errorf("register workflow %q: nil handler", wf.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[wf.ID]; exists {
		return fmt.Errorf("register workflow %q: already registered", wf.ID)
	}
	r.workflows[wf.ID] = wf
	return nil
}

// Get returns the workflow for id, or nil if unknown.
func (r *Registry) Get(id string) *hookflow.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workflows[id]
}

// IDs returns the registered workflow IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
