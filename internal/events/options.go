package events

import "github.com/rs/zerolog"

// Option configures a Bus.
type Option func(*Bus)

// WithRegistry routes the bus through r instead of the process-wide
// registry.
func WithRegistry(r *Registry) Option {
	return func(b *Bus) {
		if r != nil {
			b.registry = r
		}
	}
}

// WithLogger sets the logger used for registration and cancellation traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithMetrics records dispatch metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}
