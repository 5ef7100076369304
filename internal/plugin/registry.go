package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dw96/odin-data/pkg/log"
)

// Factory creates a plugin instance with the given instance name and an
// injected logger. Each plugin implementation exposes one Factory.
type Factory func(name string, logger log.Logger) (Plugin, error)

// Registry maps factory indexes to plugin factories. The controller
// owns one Registry; there is no process-global registration.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty plugin factory registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given index. Re-registering an
// index fails.
func (r *Registry) Register(index string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[index]; ok {
		return fmt.Errorf("plugin: factory %q already registered", index)
	}
	r.factories[index] = f
	return nil
}

// Create instantiates a plugin from the named factory.
func (r *Registry) Create(index, name string, logger log.Logger) (Plugin, error) {
	r.mu.RLock()
	f, ok := r.factories[index]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactory, index)
	}
	return f(name, logger)
}

// Indexes returns the registered factory indexes, sorted.
func (r *Registry) Indexes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for idx := range r.factories {
		out = append(out, idx)
	}
	sort.Strings(out)
	return out
}
