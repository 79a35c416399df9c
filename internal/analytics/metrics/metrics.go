package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the statistics engine. All methods
// are nil-safe so tests can run without a registry.
type Metrics struct {
	QueryDuration     *prometheus.HistogramVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	AnomaliesDetected prometheus.Counter
}

// New registers the statistics engine metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veristat_analytics_query_duration_seconds",
			Help:    "Time spent computing one statistics surface",
			Buckets: prometheus.DefBuckets,
		}, []string{"surface"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veristat_analytics_cache_hits_total",
			Help: "Statistics responses served from cache",
		}, []string{"surface"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veristat_analytics_cache_misses_total",
			Help: "Statistics responses computed from the store",
		}, []string{"surface"}),
		AnomaliesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_analytics_anomalies_detected_total",
			Help: "Volume anomalies flagged by dashboard queries",
		}),
	}
}

func (m *Metrics) ObserveQuery(surface string, seconds float64) {
	if m != nil {
		m.QueryDuration.WithLabelValues(surface).Observe(seconds)
	}
}

func (m *Metrics) IncCacheHit(surface string) {
	if m != nil {
		m.CacheHits.WithLabelValues(surface).Inc()
	}
}

func (m *Metrics) IncCacheMiss(surface string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(surface).Inc()
	}
}

func (m *Metrics) AddAnomalies(n int) {
	if m != nil && n > 0 {
		m.AnomaliesDetected.Add(float64(n))
	}
}
