// Package workflow hosts the workflow registry, the scheduler that runs
// registered workflows as background tasks, the shared helpers every
// workflow composes (step tracker, poll-to-idle, item collector,
// cancellation checks), and the workflow implementations themselves
// (semantic.cron lives in the semanticcron subpackage).
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/cartograph-dev/cartograph/taskstore"
	"github.com/cartograph-dev/cartograph/upstream"
)

// Func is the signature every registered workflow implements. ctx carries
// cancellation for the task (cancelled when taskstore.Store.Cancel is
// called); store lets the workflow report progress and checkpoints against
// its own taskID as it runs.
type Func func(ctx context.Context, taskID string, args map[string]any, client upstream.Client, store *taskstore.Store) (any, error)

// Registry is a name-to-function table of workflow implementations,
// immutable once startup registration finishes.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds name to fn. Registering the same name twice panics: this
// is a startup-time programming error, not a runtime condition, since
// registration always happens at module-load time, never under live
// traffic.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.funcs[name]; dup {
		panic(fmt.Sprintf("workflow: duplicate registration for %q", name))
	}
	r.funcs[name] = fn
}

// Lookup returns the function registered under name, or false if none is.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns every registered workflow type name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}
