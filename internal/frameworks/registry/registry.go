// Package registry is the name-keyed constructor table behind every plugin
// point: HTTP services, interceptors, and the store, cache and pubsub drivers.
// Plugins register from init(); lookups happen once at startup.
package registry

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry maps names to values of T. The zero value is not usable; call New.
type Registry[T any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]T
}

// New returns an empty registry. kind names the entries in error messages
// ("service", "store driver").
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds v under name. A name can be registered once.
func (r *Registry[T]) Register(name string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%s %q already registered", r.kind, name)
	}
	r.entries[name] = v
	return nil
}

// MustRegister is Register for init(), where a duplicate is a programming error.
func (r *Registry[T]) MustRegister(name string, v T) {
	if err := r.Register(name, v); err != nil {
		panic(err)
	}
}

// Lookup returns the value registered under name.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	return v, ok
}

// Resolve is Lookup with an error listing the available names.
func (r *Registry[T]) Resolve(name string) (T, error) {
	v, ok := r.Lookup(name)
	if !ok {
		return v, fmt.Errorf("unknown %s: %s (available: %v)", r.kind, name, r.Names())
	}
	return v, nil
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Reset drops every entry. Tests only.
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}
