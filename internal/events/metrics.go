package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event dispatch.
type Metrics struct {
	// PostsTotal counts posts by event type and whether they were cancelled.
	PostsTotal *prometheus.CounterVec

	// HandlersInvoked counts handler invocations by event type.
	HandlersInvoked *prometheus.CounterVec

	// HandlersRegistered is the number of live registrations by event type.
	HandlersRegistered *prometheus.GaugeVec

	// DispatchDuration is the time spent in one post.
	DispatchDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics under namespace and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PostsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_posts_total",
				Help:      "Total number of events posted",
			},
			[]string{"event", "cancelled"},
		),

		HandlersInvoked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handlers_invoked_total",
				Help:      "Total number of handler invocations",
			},
			[]string{"event"},
		),

		HandlersRegistered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_handlers_registered",
				Help:      "Current number of registered handlers",
			},
			[]string{"event"},
		),

		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_dispatch_duration_seconds",
				Help:      "Time to dispatch an event to its handlers",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"event"},
		),
	}
}

func (m *Metrics) observePost(event string, cancelled bool, invoked int, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if cancelled {
		label = "true"
	}
	m.PostsTotal.WithLabelValues(event, label).Inc()
	m.HandlersInvoked.WithLabelValues(event).Add(float64(invoked))
	m.DispatchDuration.WithLabelValues(event).Observe(seconds)
}

func (m *Metrics) addRegistered(event string, delta float64) {
	if m == nil {
		return
	}
	m.HandlersRegistered.WithLabelValues(event).Add(delta)
}
