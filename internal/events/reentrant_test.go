package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWithin fails the test if fn does not return in time, which would mean a
// handler deadlocked on the metadata lock.
func runWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("dispatch did not complete; re-entrant call blocked")
	}
}

func TestReentrant_RegisterDuringPost(t *testing.T) {
	bus := newTestBus()

	registered := false
	Register(bus, func(e *counter) {
		e.calls = append(e.calls, "outer")
		if !registered {
			registered = true
			Register(bus, record("late", counterCalls), 10)
		}
	}, 0)

	var ev counter
	runWithin(t, time.Second, func() { Post(bus, &ev) })
	assert.Equal(t, []string{"outer"}, ev.calls, "new handler is not seen by the running post")

	var next counter
	Post(bus, &next)
	assert.Equal(t, []string{"outer", "late"}, next.calls)
}

func TestReentrant_UnregisterSelfDuringPost(t *testing.T) {
	bus := newTestBus()

	var self *HandlerID[counter]
	self = Register(bus, func(e *counter) {
		e.calls = append(e.calls, "once")
		Unregister(bus, self)
	}, 0)
	Register(bus, record("after", counterCalls), 1)

	var ev counter
	runWithin(t, time.Second, func() { Post(bus, &ev) })
	assert.Equal(t, []string{"once", "after"}, ev.calls)

	var next counter
	Post(bus, &next)
	assert.Equal(t, []string{"after"}, next.calls)
}

func TestReentrant_UnregisterLaterHandlerDuringPost(t *testing.T) {
	bus := newTestBus()

	var later *HandlerID[counter]
	Register(bus, func(e *counter) {
		e.calls = append(e.calls, "first")
		Unregister(bus, later)
	}, 0)
	later = Register(bus, record("later", counterCalls), 1)

	var ev counter
	runWithin(t, time.Second, func() { Post(bus, &ev) })
	assert.Equal(t, []string{"first", "later"}, ev.calls, "running post keeps its snapshot")

	var next counter
	Post(bus, &next)
	assert.Equal(t, []string{"first"}, next.calls)
}

func TestReentrant_NestedPost(t *testing.T) {
	bus := newTestBus()

	Register(bus, func(e *counter) {
		e.i++
		if e.i < 3 {
			var nested counter
			nested.i = e.i
			Post(bus, &nested)
			e.calls = append(e.calls, nested.calls...)
		}
		e.calls = append(e.calls, "h")
	}, 0)

	ev := counter{}
	runWithin(t, time.Second, func() { Post(bus, &ev) })
	require.Equal(t, 1, ev.i)
	assert.Equal(t, []string{"h", "h", "h"}, ev.calls)
}

func TestReentrant_NestedPostOfCancelledEvent(t *testing.T) {
	bus := newTestBus()

	Register(bus, func(e *stoppable) {
		e.calls = append(e.calls, "a")
		Cancel(e)
	}, 0)
	Register(bus, record("b", stoppableCalls), 1)

	var ev stoppable
	assert.True(t, Post(bus, &ev))

	// The flag is carried by the instance, so posting it again stops after
	// the first handler as well.
	assert.True(t, Post(bus, &ev))
	assert.Equal(t, []string{"a", "a"}, ev.calls)
}
