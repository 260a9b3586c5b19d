package events

import (
	"reflect"
	"sort"
	"sync"
)

// Registry holds the metadata of every event type, keyed by type. Metadata
// is created on first access and kept for the lifetime of the registry.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]any
}

// NewRegistry returns an empty registry. Tests use it to isolate buses from
// the process-wide registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[reflect.Type]any)}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry used by buses that were not
// given one explicitly.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// MetadataOf returns the metadata for T in r, creating it on first access.
func MetadataOf[T any](r *Registry) *Metadata[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.RLock()
	v, ok := r.types[typ]
	r.mu.RUnlock()
	if ok {
		return v.(*Metadata[T])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.types[typ]; ok {
		return v.(*Metadata[T])
	}
	m := NewMetadata[T]()
	r.types[typ] = m
	return m
}

// Types returns the event types that have metadata in r, sorted by name.
func (r *Registry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]reflect.Type, 0, len(r.types))
	for typ := range r.types {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	return types
}

// storeFor resolves the store for T: the one the type supplies itself, or
// the metadata kept in r.
func storeFor[T any](r *Registry) Store[T] {
	if p, ok := any((*T)(nil)).(StoreProvider[T]); ok {
		if s := p.EventStore(); s != nil {
			return s
		}
	}
	return MetadataOf[T](r)
}
