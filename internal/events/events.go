package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
)

// ErrNotCancellable is the panic value (wrapped) raised when a handler
// cancels an event whose type does not support cancellation.
var ErrNotCancellable = errors.New("event type is not cancellable")

// Handler reacts to an event. It may read and modify the event before
// later handlers run.
type Handler[T any] func(event *T)

// Cancellable is implemented by event types whose dispatch may be halted by
// a handler. Types that do not implement it are not cancellable.
type Cancellable interface {
	Cancelled() bool
	SetCancelled(cancelled bool)
}

// CancelFlag can be embedded in an event struct to make it cancellable.
type CancelFlag struct {
	cancelled atomic.Bool
}

func (f *CancelFlag) Cancelled() bool          { return f.cancelled.Load() }
func (f *CancelFlag) SetCancelled(cancel bool) { f.cancelled.Store(cancel) }

// IsCancellable reports whether events of type T support cancellation.
func IsCancellable[T any]() bool {
	return reflect.TypeOf((**T)(nil)).Elem().Implements(cancellableType)
}

var cancellableType = reflect.TypeOf((*Cancellable)(nil)).Elem()

// Cancel marks the event as cancelled so no further handlers run for the
// current post. Cancelling an event that is not Cancellable is a programming
// error and panics.
func Cancel(event any) {
	c, ok := event.(Cancellable)
	if !ok {
		panic(fmt.Errorf("%w: %T", ErrNotCancellable, event))
	}
	c.SetCancelled(true)
}

func cancelled[T any](event *T) bool {
	c, ok := any(event).(Cancellable)
	return ok && c.Cancelled()
}

// TypeName returns the name events of type T are reported under in logs,
// metrics and journals.
func TypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
