package statecache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the state cache.
type Metrics struct {
	HitsTotal      prometheus.Counter
	MissesTotal    prometheus.Counter
	EvictionsTotal prometheus.Counter
	Size           prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the state cache.
//
// Uses sync.Once so repeated calls return the same instance, preventing
// duplicate collector registration panics.
//
// Metrics:
//   - mfeshell_cache_hits_total - reads that found a live entry
//   - mfeshell_cache_misses_total - reads that found nothing (or expired)
//   - mfeshell_cache_evictions_total - capacity evictions
//   - mfeshell_cache_size - current number of live entries
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mfeshell_cache_hits_total",
				Help: "Total number of cache hits",
			}),
			MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mfeshell_cache_misses_total",
				Help: "Total number of cache misses (including expired reads)",
			}),
			EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "mfeshell_cache_evictions_total",
				Help: "Total number of capacity evictions",
			}),
			Size: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "mfeshell_cache_size",
				Help: "Current number of live cache entries",
			}),
		}
	})
	return globalMetrics
}

// RecordHit increments the hit counter.
func (m *Metrics) RecordHit() { m.HitsTotal.Inc() }

// RecordMiss increments the miss counter.
func (m *Metrics) RecordMiss() { m.MissesTotal.Inc() }

// RecordEviction increments the eviction counter.
func (m *Metrics) RecordEviction() { m.EvictionsTotal.Inc() }

// SetSize updates the size gauge.
func (m *Metrics) SetSize(n int) { m.Size.Set(float64(n)) }
