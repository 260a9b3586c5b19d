package events

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// noCopy flags accidental copies of a HandlerID value under go vet.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// HandlerID is the single credential that removes one registration.
//
// A HandlerID is only ever handed out as a pointer. It is consumed by the
// first Unregister that removes its handler; any later Unregister with the
// same id is a no-op. The type parameter binds the id to its event type, so
// an id can never be used to unregister a handler of another type.
type HandlerID[T any] struct {
	_        noCopy
	id       uuid.UUID
	bus      uuid.UUID
	consumed atomic.Bool
}

func newHandlerID[T any](bus uuid.UUID) *HandlerID[T] {
	return &HandlerID[T]{id: uuid.New(), bus: bus}
}

// ID returns the unique identifier of the registration.
func (h *HandlerID[T]) ID() uuid.UUID { return h.id }

// Bus returns the identity of the bus the handler was registered on.
func (h *HandlerID[T]) Bus() uuid.UUID { return h.bus }

// Equal reports whether both ids denote the same registration.
func (h *HandlerID[T]) Equal(other *HandlerID[T]) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.id == other.id
}

func (h *HandlerID[T]) String() string { return h.id.String() }
