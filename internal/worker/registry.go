package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// TaskFunc runs one job. args is the JSON array given to Enqueue; the returned
// value is JSON-encoded into the job result.
type TaskFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Registry maps task names to their implementations.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskFunc)}
}

// Register adds a task. Registering the same name twice is a programming error.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		panic(fmt.Sprintf("worker: task %q registered twice", name))
	}
	r.tasks[name] = fn
}

// Lookup returns the task registered under name.
func (r *Registry) Lookup(name string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	return fn, ok
}

// Names lists registered tasks in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
