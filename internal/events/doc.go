// Package events implements typed, priority-ordered event dispatch.
//
// Handlers are registered for an event type on a Bus with an integer
// priority and run in ascending priority order when an event of that type
// is posted through the same bus. Event types that implement Cancellable
// can stop dispatch early.
//
//	bus := events.NewBus()
//	id := events.Register(bus, func(e *Resize) { ... }, 0)
//	events.Post(bus, &Resize{Width: 800, Height: 600})
//	events.Unregister(bus, id)
//
// Handler metadata for each event type lives in a Registry, created lazily
// and never torn down. A type may keep its own metadata by implementing
// StoreProvider.
//
// Handler lists are copy-on-write. Post dispatches over the list as it was
// when the call began without holding any lock, so handlers may register,
// unregister and post re-entrantly; such changes take effect on the next
// post.
package events
