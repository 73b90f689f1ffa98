// Package observability holds the service's prometheus instrumentation.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the query path and the community job record
// into. One instance is created at startup and shared.
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec
	SourceFailures  *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	SourceDuration  *prometheus.HistogramVec
	CommunityRuns   *prometheus.CounterVec
	ConsistencyErrs *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_queries_total",
			Help: "Retrieval queries by outcome (ok, degraded, failed).",
		}, []string{"outcome"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_source_failures_total",
			Help: "Per-source retrieval failures and timeouts.",
		}, []string{"source", "reason"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratum_query_duration_seconds",
			Help:    "End-to-end query latency including fusion and re-ranking.",
			Buckets: prometheus.DefBuckets,
		}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stratum_source_duration_seconds",
			Help:    "Per-source retrieval latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CommunityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_community_runs_total",
			Help: "Community detection runs by outcome (completed, failed, rejected).",
		}, []string{"outcome"}),
		ConsistencyErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratum_consistency_reports_total",
			Help: "Consistency checker reports by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.QueriesTotal,
			m.SourceFailures,
			m.QueryDuration,
			m.SourceDuration,
			m.CommunityRuns,
			m.ConsistencyErrs,
		)
	}
	return m
}
