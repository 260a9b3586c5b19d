// Package relay bridges buses in different processes over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"evbus/internal/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds relay settings.
type Config struct {
	// Channel is the prefix of the Redis channels; each event type gets
	// "<Channel>:<type name>".
	Channel string

	// Rate is the number of events per second Forward publishes. Events over
	// the rate are dropped.
	Rate float64

	// Burst is the maximum number of events published at once.
	Burst int

	// PublishTimeout bounds a single publish. Default: 2 seconds.
	PublishTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Channel:        "evbus",
		Rate:           100,
		Burst:          200,
		PublishTimeout: 2 * time.Second,
	}
}

// Envelope is the wire format of a relayed event.
type Envelope struct {
	Origin  string          `json:"origin"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// Relay forwards local events to Redis and delivers remote events to local
// buses. Each Relay has its own origin id and never delivers its own
// messages back.
type Relay struct {
	rdb     *redis.Client
	cfg     Config
	origin  uuid.UUID
	limiter *rate.Limiter
	logger  zerolog.Logger
	metrics *Metrics

	// inflight holds events currently being posted by Deliver, keyed by
	// pointer, so Forward does not publish them again.
	inflight sync.Map
}

// Option configures a Relay.
type Option func(*Relay)

// WithMetrics records relay metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// New creates a relay publishing and subscribing through rdb.
func New(rdb *redis.Client, cfg Config, logger zerolog.Logger, opts ...Option) *Relay {
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	r := &Relay{
		rdb:     rdb,
		cfg:     cfg,
		origin:  uuid.New(),
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}
	r.logger = logger.With().Str("component", "relay").Str("origin", r.origin.String()).Logger()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Origin returns the id stamped on every envelope this relay publishes.
func (r *Relay) Origin() uuid.UUID { return r.origin }

// Channel returns the Redis channel used for eventType.
func (r *Relay) Channel(eventType string) string {
	return r.cfg.Channel + ":" + eventType
}

// Forward registers a handler on bus that publishes every event of type T
// reaching it. Publish failures and events over the rate limit are logged
// and dropped; they never affect local dispatch.
func Forward[T any](ctx context.Context, r *Relay, bus *events.Bus, priority int) *events.HandlerID[T] {
	eventType := events.TypeName[T]()
	channel := r.Channel(eventType)

	return events.Register(bus, func(ev *T) {
		if _, delivering := r.inflight.Load(ev); delivering {
			return
		}
		if !r.limiter.Allow() {
			r.metrics.incDropped(eventType)
			r.logger.Warn().Str("event", eventType).Msg("Relay rate exceeded, event dropped")
			return
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			r.logger.Error().Err(err).Str("event", eventType).Msg("Failed to encode event")
			return
		}
		data, err := json.Marshal(Envelope{
			Origin:  r.origin.String(),
			Type:    eventType,
			Payload: payload,
			SentAt:  time.Now().UTC(),
		})
		if err != nil {
			r.logger.Error().Err(err).Str("event", eventType).Msg("Failed to encode envelope")
			return
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		defer cancel()
		if err := r.rdb.Publish(pubCtx, channel, data).Err(); err != nil {
			r.logger.Error().Err(err).Str("channel", channel).Msg("Failed to publish event")
			return
		}
		r.metrics.incPublished(eventType)
	}, priority)
}

// Subscription is an active delivery from Redis into a bus.
type Subscription struct {
	ps   *redis.PubSub
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Close stops delivery and waits for the delivery goroutine to exit.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		if cerr := s.ps.Close(); cerr != nil && !errors.Is(cerr, redis.ErrClosed) {
			err = cerr
		}
	})
	<-s.done
	return err
}

// Done is closed once delivery has stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Deliver subscribes to the channel of T and posts every event published by
// another relay into bus. Delivery runs until ctx is done or the
// subscription is closed.
func Deliver[T any](ctx context.Context, r *Relay, bus *events.Bus) (*Subscription, error) {
	eventType := events.TypeName[T]()
	channel := r.Channel(eventType)

	ps := r.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &Subscription{ps: ps, stop: make(chan struct{}), done: make(chan struct{})}
	msgs := ps.Channel()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				ps.Close()
				return
			case <-sub.stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				deliver[T](r, bus, eventType, msg.Payload)
			}
		}
	}()

	r.logger.Info().Str("channel", channel).Msg("Relay delivery started")
	return sub, nil
}

var errTypeMismatch = errors.New("envelope type mismatch")

func deliver[T any](r *Relay, bus *events.Bus, eventType, data string) {
	ev, err := decode[T](r, eventType, data)
	if err != nil {
		r.logger.Error().Err(err).Str("event", eventType).Msg("Failed to decode relayed event")
		return
	}
	if ev == nil {
		return
	}

	r.inflight.Store(ev, struct{}{})
	defer r.inflight.Delete(ev)

	events.Post(bus, ev)
	r.metrics.incDelivered(eventType)
}

// decode returns nil, nil for envelopes this relay published itself.
func decode[T any](r *Relay, eventType, data string) (*T, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, err
	}
	if env.Origin == r.origin.String() {
		return nil, nil
	}
	if env.Type != eventType {
		return nil, errTypeMismatch
	}

	ev := new(T)
	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
