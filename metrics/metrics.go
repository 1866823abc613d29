// Package metrics exposes Prometheus counters for the lifecycle engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/warp/compliance-engine/lifecycle"
)

// Metrics implements lifecycle.Observer.
type Metrics struct {
	Renewals           *prometheus.CounterVec
	RecordsRetired     *prometheus.CounterVec
	PaymentsCapped     *prometheus.CounterVec
	Conflicts          *prometheus.CounterVec
	SweepRuns          *prometheus.CounterVec
	SweepUpdated       prometheus.Counter
	SweepParseFailures prometheus.Counter
	SweepDuration      prometheus.Histogram
}

var _ lifecycle.Observer = (*Metrics)(nil)

// New registers all engine metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Renewals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_records_created_total",
			Help: "Total number of records created, by record type",
		}, []string{"record_type"}),
		RecordsRetired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_records_retired_total",
			Help: "Total number of records retired by a renewal, by record type",
		}, []string{"record_type"}),
		PaymentsCapped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_payments_capped_total",
			Help: "Total number of payments capped to the total fee, by record type",
		}, []string{"record_type"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_conflicts_total",
			Help: "Total number of writes that lost an optimistic race, by operation",
		}, []string{"op"}),
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_sweep_runs_total",
			Help: "Total number of reconciliation sweeps, by outcome",
		}, []string{"outcome"}),
		SweepUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_sweep_status_updates_total",
			Help: "Total number of status corrections written by sweeps",
		}),
		SweepParseFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_sweep_parse_failures_total",
			Help: "Total number of records skipped by sweeps because validTo did not parse",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_sweep_duration_seconds",
			Help:    "Duration of reconciliation sweeps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// RenewalCompleted records a create or renewal and the predecessors it retired.
func (m *Metrics) RenewalCompleted(rt lifecycle.RecordType, retired int) {
	m.Renewals.WithLabelValues(string(rt)).Inc()
	if retired > 0 {
		m.RecordsRetired.WithLabelValues(string(rt)).Add(float64(retired))
	}
}

func (m *Metrics) PaymentCapped(rt lifecycle.RecordType) {
	m.PaymentsCapped.WithLabelValues(string(rt)).Inc()
}

func (m *Metrics) ConflictDetected(op string) {
	m.Conflicts.WithLabelValues(op).Inc()
}

// SweepCompleted records one sweep. outcome is "ok" or "error".
func (m *Metrics) SweepCompleted(res lifecycle.SweepResult, elapsed time.Duration) {
	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
	}
	m.SweepRuns.WithLabelValues(outcome).Inc()
	m.SweepUpdated.Add(float64(res.Updated))
	m.SweepParseFailures.Add(float64(res.ParseFailures))
	m.SweepDuration.Observe(elapsed.Seconds())
}
