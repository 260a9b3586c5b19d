package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus is a dispatch namespace. Handlers registered on one bus never see
// events posted through another. Buses are compared by identity.
type Bus struct {
	id       uuid.UUID
	registry *Registry
	logger   zerolog.Logger
	metrics  *Metrics
}

// NewBus returns a bus with a fresh identity.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		id:       uuid.New(),
		registry: Global(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With().Str("component", "events").Str("bus", b.id.String()).Logger()
	return b
}

// ID returns the identity of the bus.
func (b *Bus) ID() uuid.UUID { return b.id }

// Registry returns the registry the bus resolves event metadata from.
func (b *Bus) Registry() *Registry { return b.registry }

func (b *Bus) String() string { return b.id.String() }

// Register adds fn as a handler for events of type T posted on b. Lower
// priorities run first; handlers with equal priority run in registration
// order. Registering the same function twice creates two registrations.
func Register[T any](b *Bus, fn Handler[T], priority int) *HandlerID[T] {
	var id *HandlerID[T]
	storeFor[T](b.registry).Update(func(m *Metadata[T]) {
		id = m.put(b.id, fn, priority)
	})

	event := TypeName[T]()
	b.metrics.addRegistered(event, 1)
	b.logger.Debug().
		Str("event", event).
		Str("handler_id", id.String()).
		Int("priority", priority).
		Msg("handler registered")

	return id
}

// Unregister removes the handler registered under id. The id is consumed by
// the first call that removes its handler; unregistering an id that was
// already consumed or that belongs to another bus does nothing.
func Unregister[T any](b *Bus, id *HandlerID[T]) {
	if id == nil || id.bus != b.id || id.consumed.Load() {
		return
	}

	var removed bool
	storeFor[T](b.registry).Update(func(m *Metadata[T]) {
		if id.consumed.Load() {
			return
		}
		removed = m.remove(b.id, id)
		if removed {
			id.consumed.Store(true)
		}
	})
	if !removed {
		return
	}

	event := TypeName[T]()
	b.metrics.addRegistered(event, -1)
	b.logger.Debug().
		Str("event", event).
		Str("handler_id", id.String()).
		Msg("handler unregistered")
}

// Post dispatches event to the handlers of T on b in priority order. If the
// event is Cancellable and a handler cancels it, the remaining handlers are
// skipped and Post returns true.
//
// Post dispatches over the handler list as it was when the call started:
// registrations and removals made by handlers apply to later posts.
func Post[T any](b *Bus, event *T) bool {
	start := time.Now()
	cancelled, invoked := post(storeFor[T](b.registry), b.id, event)

	if b.metrics != nil {
		b.metrics.observePost(TypeName[T](), cancelled, invoked, time.Since(start).Seconds())
	}
	if cancelled {
		b.logger.Debug().
			Str("event", TypeName[T]()).
			Int("invoked", invoked).
			Msg("event cancelled")
	}
	return cancelled
}

// Count returns the number of handlers for T registered on b.
func Count[T any](b *Bus) int {
	var n int
	storeFor[T](b.registry).View(func(m *Metadata[T]) {
		n = len(m.handlersOf(b.id))
	})
	return n
}
