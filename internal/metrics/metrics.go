// Package metrics provides Prometheus instrumentation for the beacon
// client.
//
// All metrics are registered in a custom [prometheus.Registry] (not the
// global default) so that host applications choose whether and where to
// expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for beacon_evaluations_total.
const (
	OutcomeRule    = "rule"
	OutcomeTarget  = "target"
	OutcomeDefault = "default"
	OutcomeMissing = "missing"
)

// Metrics holds all Prometheus collectors used by the beacon client.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal   *prometheus.CounterVec
	CacheRequestsTotal *prometheus.CounterVec
	RuleLoadsTotal     *prometheus.CounterVec
	FetchAttemptsTotal prometheus.Counter
	FetchFailuresTotal prometheus.Counter
	FetchDuration      prometheus.Histogram
	UsageReportsTotal  *prometheus.CounterVec
}

// New creates and registers all beacon metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_evaluations_total",
			Help: "Total number of flag evaluations by resolution outcome.",
		}, []string{"key", "outcome"}),

		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_cache_requests_total",
			Help: "Total number of rule-set cache reads by result.",
		}, []string{"backend", "result"}),

		RuleLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_rule_loads_total",
			Help: "Total number of rule-set loads by source.",
		}, []string{"source"}),

		FetchAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_fetch_attempts_total",
			Help: "Total number of remote rule-set fetch attempts, including retries.",
		}),

		FetchFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beacon_fetch_failures_total",
			Help: "Total number of rule-set fetches that exhausted their retries.",
		}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_fetch_duration_seconds",
			Help:    "Remote rule-set fetch latency in seconds, retries included.",
			Buckets: prometheus.DefBuckets,
		}),

		UsageReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_usage_reports_total",
			Help: "Total number of usage reports by delivery status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.CacheRequestsTotal,
		m.RuleLoadsTotal,
		m.FetchAttemptsTotal,
		m.FetchFailuresTotal,
		m.FetchDuration,
		m.UsageReportsTotal,
	)

	return m
}
