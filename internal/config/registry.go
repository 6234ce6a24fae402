package config

import (
	"fmt"
	"sync"

	"github.com/voxkit/voxkit/internal/engine"
)

// BackendFactory builds an engine.Provider from the engine config section.
type BackendFactory func(EngineConfig) (engine.Provider, error)

// Registry maps engine backend names to their factories. Backends register
// themselves at startup; the configured name is resolved once when the
// pipeline is assembled.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]BackendFactory)}
}

// Register adds a backend factory under name, replacing any previous entry.
func (r *Registry) Register(name string, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create resolves cfg.Backend and builds the provider.
func (r *Registry) Create(cfg EngineConfig) (engine.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("config: no engine backend registered under %q", cfg.Backend)
	}
	return factory(cfg)
}

// Names returns the registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
