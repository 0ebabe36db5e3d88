package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tripmesh"
	subsystem = "trustd"
)

// Metrics holds the service's Prometheus instruments. Construct once per
// process against the default registerer; tests pass a fresh registry so
// repeated construction never collides.
type Metrics struct {
	// RecomputesTotal counts recompute invocations.
	// Labels: mode (full, stored), outcome (ok, error, noop)
	RecomputesTotal *prometheus.CounterVec

	// RecomputeDuration measures recompute latency by mode.
	RecomputeDuration *prometheus.HistogramVec

	// CollectorFailures counts absorbed collector and collaborator
	// failures. Labels: collector (wallet_history, wallet_holdings,
	// wallet_address, identity_refresh, identity_profile, connections,
	// messaging_link)
	CollectorFailures *prometheus.CounterVec

	// IdentityRevocations counts definitive identity grant revocations.
	IdentityRevocations prometheus.Counter

	// CompositeScore tracks the distribution of computed composite scores.
	CompositeScore prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecomputesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "recomputes_total",
				Help:      "Total recompute invocations by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),

		RecomputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "recompute_duration_seconds",
				Help:      "Recompute latency in seconds by mode",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"mode"},
		),

		CollectorFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "collector_failures_total",
				Help:      "Absorbed collector and collaborator failures by source",
			},
			[]string{"collector"},
		),

		IdentityRevocations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "identity_revocations_total",
				Help:      "Definitive identity grant revocations observed",
			},
		),

		CompositeScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "composite_score",
				Help:      "Distribution of computed composite scores",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
	}
}

// RecordRecompute records one finished recompute invocation.
func (m *Metrics) RecordRecompute(mode, outcome string, seconds float64) {
	m.RecomputesTotal.WithLabelValues(mode, outcome).Inc()
	m.RecomputeDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordCollectorFailure counts one absorbed failure for a source.
func (m *Metrics) RecordCollectorFailure(collector string) {
	m.CollectorFailures.WithLabelValues(collector).Inc()
}
