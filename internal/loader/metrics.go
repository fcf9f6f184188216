package loader

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the module loader.
type Metrics struct {
	ActivationsTotal   *prometheus.CounterVec
	FailuresTotal      *prometheus.CounterVec
	DeactivationsTotal *prometheus.CounterVec
	ActiveModules      prometheus.Gauge
	LoadDuration       prometheus.Histogram
}

// NewMetrics creates and registers Prometheus metrics for the loader.
//
// Uses sync.Once so repeated calls return the same instance, preventing
// duplicate collector registration panics.
//
// Metrics:
//   - mfeshell_loader_activations_total{module} - successful activations
//   - mfeshell_loader_failures_total{module,phase} - load/init/activate/deactivate failures
//   - mfeshell_loader_deactivations_total{module} - completed deactivations
//   - mfeshell_loader_active_modules - currently mounted modules
//   - mfeshell_loader_load_duration_seconds - time from load start to loaded state
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ActivationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mfeshell_loader_activations_total",
				Help: "Total number of successful module activations",
			}, []string{"module"}),
			FailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mfeshell_loader_failures_total",
				Help: "Total number of lifecycle failures by phase",
			}, []string{"module", "phase"}),
			DeactivationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "mfeshell_loader_deactivations_total",
				Help: "Total number of completed module deactivations",
			}, []string{"module"}),
			ActiveModules: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mfeshell_loader_active_modules",
				Help: "Number of currently mounted modules",
			}),
			LoadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "mfeshell_loader_load_duration_seconds",
				Help:    "Time from load start to the loaded state",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return globalMetrics
}

// RecordActivation increments the activation counter for a module.
func (m *Metrics) RecordActivation(moduleID string) {
	m.ActivationsTotal.WithLabelValues(moduleID).Inc()
}

// RecordFailure increments the failure counter for a module and phase.
func (m *Metrics) RecordFailure(moduleID string, phase Phase) {
	m.FailuresTotal.WithLabelValues(moduleID, string(phase)).Inc()
}

// RecordDeactivation increments the deactivation counter for a module.
func (m *Metrics) RecordDeactivation(moduleID string) {
	m.DeactivationsTotal.WithLabelValues(moduleID).Inc()
}

// SetActive updates the mounted-modules gauge.
func (m *Metrics) SetActive(n int) { m.ActiveModules.Set(float64(n)) }

// ObserveLoad records a load duration.
func (m *Metrics) ObserveLoad(d time.Duration) { m.LoadDuration.Observe(d.Seconds()) }
