package schema

import (
	"sync"

	"github.com/yanun0323/errors"
)

// Registry maps schema names to validators. Contexts own a registry
// explicitly; there is no package-level singleton, so independent
// contexts in one process can register different validators.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Validator)}
}

// Register adds a validator under its own name.
func (r *Registry) Register(v Validator) error {
	if v == nil || v.Name() == "" {
		return errors.New("validator is nil or unnamed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[v.Name()]; ok {
		return errors.Errorf("schema already registered: %s", v.Name())
	}
	r.byName[v.Name()] = v
	return nil
}

// Lookup returns the validator registered under name.
func (r *Registry) Lookup(name string) (Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byName[name]
	return v, ok
}
