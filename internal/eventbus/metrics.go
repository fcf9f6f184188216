package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the event bus.
type Metrics struct {
	EmitsTotal         *prometheus.CounterVec
	HandlerPanicsTotal *prometheus.CounterVec
	BridgedOutTotal    prometheus.Counter
	BridgedInTotal     prometheus.Counter
}

// NewMetrics creates and registers Prometheus metrics for the event bus.
//
// Uses sync.Once so repeated calls return the same instance, preventing
// duplicate collector registration panics.
//
// Metrics:
//   - mfeshell_bus_emits_total{event} - events emitted
//   - mfeshell_bus_handler_panics_total{event} - recovered handler panics
//   - mfeshell_bus_bridged_out_total - events mirrored to NATS
//   - mfeshell_bus_bridged_in_total - events relayed from NATS
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			EmitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mfeshell_bus_emits_total",
					Help: "Total number of events emitted on the bus",
				},
				[]string{"event"},
			),
			HandlerPanicsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mfeshell_bus_handler_panics_total",
					Help: "Total number of recovered event handler panics",
				},
				[]string{"event"},
			),
			BridgedOutTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mfeshell_bus_bridged_out_total",
					Help: "Total number of events mirrored to NATS",
				},
			),
			BridgedInTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "mfeshell_bus_bridged_in_total",
					Help: "Total number of events relayed in from NATS",
				},
			),
		}
	})
	return globalMetrics
}

// RecordEmit increments the emit counter for an event.
func (m *Metrics) RecordEmit(event string) {
	m.EmitsTotal.WithLabelValues(event).Inc()
}

// RecordHandlerPanic increments the panic counter for an event.
func (m *Metrics) RecordHandlerPanic(event string) {
	m.HandlerPanicsTotal.WithLabelValues(event).Inc()
}
