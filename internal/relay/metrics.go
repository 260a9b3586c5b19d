package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the relay.
type Metrics struct {
	Published *prometheus.CounterVec
	Delivered *prometheus.CounterVec
	Dropped   *prometheus.CounterVec
}

// NewMetrics creates relay metrics under namespace and registers them with
// reg (the default registry when nil).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Total number of events published to Redis",
		}, []string{"event"}),
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_delivered_total",
			Help:      "Total number of remote events posted to a local bus",
		}, []string{"event"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_dropped_total",
			Help:      "Total number of events dropped by the rate limiter",
		}, []string{"event"}),
	}
}

func (m *Metrics) incPublished(event string) {
	if m != nil {
		m.Published.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) incDelivered(event string) {
	if m != nil {
		m.Delivered.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) incDropped(event string) {
	if m != nil {
		m.Dropped.WithLabelValues(event).Inc()
	}
}
