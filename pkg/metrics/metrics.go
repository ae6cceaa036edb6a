// Package metrics exposes Prometheus collectors for reconciliation
// outcomes, verification latency and audit-log retries. All methods are
// safe on a nil receiver so instrumentation stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation outcome label values.
const (
	OutcomeCommitted          = "committed"
	OutcomeDuplicate          = "duplicate_ignored"
	OutcomeFlagged            = "flagged_double_charge"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeCommitFailed       = "commit_failed"
)

// Metrics holds the billing engine's Prometheus collectors.
type Metrics struct {
	reconcileOutcomes *prometheus.CounterVec
	verifyDuration    *prometheus.HistogramVec
	auditRetries      prometheus.Counter
}

// New registers the billing collectors on reg and returns them.
// Pass prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconcileOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "reconciliations_total",
			Help:      "Reconciliation attempts by platform and outcome.",
		}, []string{"platform", "outcome"}),
		verifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "verification_duration_seconds",
			Help:      "Latency of payment verification calls by platform.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		auditRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "audit_write_retries_total",
			Help:      "Best-effort audit writes that needed at least one retry.",
		}),
	}
	reg.MustRegister(m.reconcileOutcomes, m.verifyDuration, m.auditRetries)
	return m
}

// ObserveReconciliation counts one reconciliation attempt.
// Nil-safe so callers can leave metrics unconfigured.
func (m *Metrics) ObserveReconciliation(platform, outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.WithLabelValues(platform, outcome).Inc()
}

// ObserveVerification records the duration of one verification call.
func (m *Metrics) ObserveVerification(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.verifyDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// ObserveAuditRetry counts one audit write that did not succeed first try.
func (m *Metrics) ObserveAuditRetry() {
	if m == nil {
		return
	}
	m.auditRetries.Inc()
}
