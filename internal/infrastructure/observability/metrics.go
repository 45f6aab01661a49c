package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine metrics
type Metrics struct {
	// Transaction metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	SavepointsTotal     *prometheus.CounterVec

	// Retry metrics
	RetryAttemptsTotal *prometheus.CounterVec
	RetryOutcomesTotal *prometheus.CounterVec

	// Batch metrics
	BatchRowsTotal *prometheus.CounterVec
	BatchDuration  *prometheus.HistogramVec

	// Audit metrics
	AuditFallbackTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of coordinator transactions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		TransactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Transaction duration from begin to resolution in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"action"},
		),
		SavepointsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "savepoints_total",
				Help:      "Total number of savepoints by outcome (released or rolled_back)",
			},
			[]string{"outcome"},
		),
		RetryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts by classified error kind",
			},
			[]string{"kind"},
		),
		RetryOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_outcomes_total",
				Help:      "Final outcomes of retried operations",
			},
			[]string{"outcome"},
		),
		BatchRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_rows_total",
				Help:      "Total number of batch rows by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "End-to-end batch operation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"operation"},
		),
		AuditFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_fallback_total",
				Help:      "Audit entries routed to the fallback channel",
			},
		),
	}

	reg.MustRegister(
		m.TransactionsTotal,
		m.TransactionDuration,
		m.SavepointsTotal,
		m.RetryAttemptsTotal,
		m.RetryOutcomesTotal,
		m.BatchRowsTotal,
		m.BatchDuration,
		m.AuditFallbackTotal,
	)

	return m
}
