package tools

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Sentinel errors for registry operations
var (
	ErrPluginNotFound  = errors.New("plugin not found")
	ErrPluginDuplicate = errors.New("plugin id already registered")
	ErrPluginDisabled  = errors.New("plugin disabled")
)

// Registry holds the locally hosted plugins. Plugins register at startup
// and can be toggled at runtime without a restart.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	disabled map[string]bool
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string]Plugin),
		disabled: make(map[string]bool),
	}
}

// Register adds a plugin under its id
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.ID()
	if _, exists := r.plugins[id]; exists {
		return errors.Wrap(ErrPluginDuplicate, id)
	}
	r.plugins[id] = p
	logging.LogDebugf("Registered plugin %s (%d tools)", id, len(p.Tools()))
	return nil
}

// Get returns an enabled plugin by id
func (r *Registry) Get(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	if !ok {
		return nil, errors.Wrap(ErrPluginNotFound, id)
	}
	if r.disabled[id] {
		return nil, errors.Wrap(ErrPluginDisabled, id)
	}
	return p, nil
}

// Has reports whether a plugin id is registered, enabled or not
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[id]
	return ok
}

// All returns every enabled plugin
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.plugins))
	for id, p := range r.plugins {
		if r.disabled[id] {
			continue
		}
		result = append(result, p)
	}
	return result
}

// SetEnabled toggles a plugin at runtime
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[id]; !ok {
		return errors.Wrap(ErrPluginNotFound, id)
	}
	r.disabled[id] = !enabled
	logging.LogInfof("Plugin %s enabled=%v", id, enabled)
	return nil
}
