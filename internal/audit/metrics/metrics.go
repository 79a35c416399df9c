package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit ledger. All methods are
// nil-safe so tests can run without a registry.
type Metrics struct {
	EventsRecorded      *prometheus.CounterVec
	IntegrityViolations prometheus.Counter
	BurstsDetected      prometheus.Counter
	DecryptFailures     prometheus.Counter
}

// New registers the audit ledger metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veristat_audit_events_recorded_total",
			Help: "Audit events appended to the ledger",
		}, []string{"severity"}),
		IntegrityViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_audit_integrity_violations_total",
			Help: "Audit events whose integrity hash failed verification",
		}),
		BurstsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_audit_bursts_detected_total",
			Help: "Security event bursts escalated to suspicious activity patterns",
		}),
		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veristat_audit_decrypt_failures_total",
			Help: "Encrypted audit fields that could not be opened during history reads",
		}),
	}
}

func (m *Metrics) IncRecorded(severity string) {
	if m != nil {
		m.EventsRecorded.WithLabelValues(severity).Inc()
	}
}

func (m *Metrics) AddViolations(n int) {
	if m != nil && n > 0 {
		m.IntegrityViolations.Add(float64(n))
	}
}

func (m *Metrics) IncBurst() {
	if m != nil {
		m.BurstsDetected.Inc()
	}
}

func (m *Metrics) IncDecryptFailure() {
	if m != nil {
		m.DecryptFailures.Inc()
	}
}
