package recurrence

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts materialization outcomes.
type Metrics struct {
	materialized prometheus.Counter
	skipped      prometheus.Counter
	failures     prometheus.Counter
	passDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		materialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharedledger_occurrences_materialized_total",
			Help: "Recurring occurrences turned into ledger entries.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharedledger_occurrences_skipped_total",
			Help: "Recurring occurrences left pending because they failed validation.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharedledger_materialize_failures_total",
			Help: "Materialization passes aborted by storage errors.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sharedledger_materialize_pass_duration_seconds",
			Help:    "Duration of one materialization pass over all templates.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.materialized, m.skipped, m.failures, m.passDuration)
	}
	return m
}
