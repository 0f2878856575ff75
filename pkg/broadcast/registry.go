package broadcast

import (
	"sort"
	"sync"
)

// Handler is invoked when its identifier is delivered.
// Handlers run on the facility's delivery goroutine and should return quickly.
type Handler func()

// Registry maps identifiers to handlers for one Broadcaster.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Identifier]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Identifier]Handler)}
}

// Register stores h for id, replacing any previous handler in place.
// It reports whether a previous handler was replaced.
func (r *Registry) Register(id Identifier, h Handler) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced = r.handlers[id]
	r.handlers[id] = h
	return replaced
}

// Unregister removes the handler for id and reports whether one was present.
func (r *Registry) Unregister(id Identifier) (removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[id]; !ok {
		return false
	}
	delete(r.handlers, id)
	return true
}

// Lookup returns the handler for id.
func (r *Registry) Lookup(id Identifier) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[id]
	return h, ok
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Identifiers returns the registered identifiers in sorted order.
func (r *Registry) Identifiers() []Identifier {
	r.mu.RLock()
	ids := make([]Identifier, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear removes every handler and returns the identifiers that were registered.
func (r *Registry) Clear() []Identifier {
	r.mu.Lock()
	ids := make([]Identifier, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	r.handlers = make(map[Identifier]Handler)
	r.mu.Unlock()
	return ids
}
