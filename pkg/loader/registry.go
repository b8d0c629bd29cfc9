package loader

import "sync"

// Registry holds the per-request loader set, one loader per entity kind.
// A fresh registry is attached to every request context so cached rows
// never outlive the request that fetched them.
type Registry struct {
	mu sync.Mutex
	m  map[string]any
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]any)}
}

// For returns the named loader from the registry, constructing it on first
// use. The construct function must always build a loader of the same type
// for a given name.
func For[K comparable, V any](r *Registry, name string, construct func() *Loader[K, V]) *Loader[K, V] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.m[name]; ok {
		return existing.(*Loader[K, V])
	}
	l := construct()
	r.m[name] = l
	return l
}
