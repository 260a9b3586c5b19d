package events

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// entry is one registered handler.
type entry[T any] struct {
	priority int
	fn       Handler[T]
	id       *HandlerID[T]
}

// Store gives scoped access to the metadata of one event type. View grants
// shared read access, Update exclusive access; both hold the access only for
// the duration of the callback.
type Store[T any] interface {
	View(fn func(m *Metadata[T]))
	Update(fn func(m *Metadata[T]))
}

// StoreProvider is implemented by event types that keep their own metadata
// instead of using the bus registry. EventStore is called on a nil *T and
// must not dereference its receiver.
type StoreProvider[T any] interface {
	EventStore() Store[T]
}

// Metadata holds the handlers of one event type, segmented by bus. Each
// bus's handler list is sorted by ascending priority; equal priorities keep
// registration order.
//
// Handler lists are never modified in place: put and remove replace the
// list, so a slice obtained under View stays valid after the lock is
// released.
type Metadata[T any] struct {
	mu       sync.RWMutex
	handlers map[uuid.UUID][]entry[T]
}

// NewMetadata returns empty metadata. The zero value is also ready to use.
func NewMetadata[T any]() *Metadata[T] {
	return &Metadata[T]{handlers: make(map[uuid.UUID][]entry[T])}
}

// View implements Store.
func (m *Metadata[T]) View(fn func(m *Metadata[T])) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m)
}

// Update implements Store.
func (m *Metadata[T]) Update(fn func(m *Metadata[T])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// put inserts fn after every handler on bus with priority <= priority.
// Callers must hold exclusive access.
func (m *Metadata[T]) put(bus uuid.UUID, fn Handler[T], priority int) *HandlerID[T] {
	if m.handlers == nil {
		m.handlers = make(map[uuid.UUID][]entry[T])
	}
	list := m.handlers[bus]
	pos := sort.Search(len(list), func(i int) bool { return list[i].priority > priority })

	id := newHandlerID[T](bus)
	next := make([]entry[T], 0, len(list)+1)
	next = append(next, list[:pos]...)
	next = append(next, entry[T]{priority: priority, fn: fn, id: id})
	next = append(next, list[pos:]...)
	m.handlers[bus] = next

	return id
}

// remove drops the handler registered under id and prunes the bus when its
// list becomes empty. It reports whether a handler was removed. Callers
// must hold exclusive access.
func (m *Metadata[T]) remove(bus uuid.UUID, id *HandlerID[T]) bool {
	list, ok := m.handlers[bus]
	if !ok {
		return false
	}

	next := make([]entry[T], 0, len(list))
	for _, e := range list {
		if e.id != id {
			next = append(next, e)
		}
	}
	if len(next) == len(list) {
		return false
	}

	if len(next) == 0 {
		delete(m.handlers, bus)
	} else {
		m.handlers[bus] = next
	}
	return true
}

// handlersOf returns the current handler list of bus. Callers must hold at
// least shared access; the returned slice may be used after releasing it.
func (m *Metadata[T]) handlersOf(bus uuid.UUID) []entry[T] {
	return m.handlers[bus]
}

// post invokes the handlers of bus from store in order and reports whether a
// handler cancelled the event, along with the number of handlers invoked.
// The list is taken under shared access and dispatched with no lock held,
// so handlers may register, unregister or post on the same type.
func post[T any](store Store[T], bus uuid.UUID, event *T) (bool, int) {
	var list []entry[T]
	store.View(func(m *Metadata[T]) { list = m.handlersOf(bus) })

	for i, h := range list {
		h.fn(event)
		if cancelled(event) {
			return true, i + 1
		}
	}
	return false, len(list)
}

// Len returns the number of handlers registered on bus.
func (m *Metadata[T]) Len(bus uuid.UUID) int {
	var n int
	m.View(func(m *Metadata[T]) { n = len(m.handlers[bus]) })
	return n
}

// Buses returns the number of buses with at least one handler.
func (m *Metadata[T]) Buses() int {
	var n int
	m.View(func(m *Metadata[T]) { n = len(m.handlers) })
	return n
}
