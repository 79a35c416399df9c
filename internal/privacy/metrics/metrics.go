package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the anonymization gate. All methods are
// nil-safe so tests can run without a registry.
type Metrics struct {
	SuppressedCategories prometheus.Counter
	BudgetExceeded       prometheus.Counter
	NoiseMagnitude       prometheus.Histogram
}

// New registers the anonymization gate metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		SuppressedCategories: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_privacy_suppressed_categories_total",
			Help: "Categories removed by k-anonymity suppression",
		}),
		BudgetExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_privacy_budget_exceeded_total",
			Help: "Noise applications rejected because the series budget was exhausted",
		}),
		NoiseMagnitude: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veristat_privacy_noise_magnitude",
			Help:    "Absolute Laplace noise added to published counts",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) AddSuppressed(n int) {
	if m != nil && n > 0 {
		m.SuppressedCategories.Add(float64(n))
	}
}

func (m *Metrics) IncBudgetExceeded() {
	if m != nil {
		m.BudgetExceeded.Inc()
	}
}

func (m *Metrics) ObserveNoise(magnitude float64) {
	if m != nil {
		m.NoiseMagnitude.Observe(magnitude)
	}
}
