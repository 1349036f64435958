// Package observability provides metrics and tracing for linksync jobs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all linksync metrics.
	MetricsNamespace = "linksync"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Job metrics
	JobRunsTotal       *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec

	// Content metrics
	ContentIndexed *prometheus.GaugeVec
	PeerSyncTotal  *prometheus.CounterVec

	// Link metrics
	InjectionOutcomes *prometheus.CounterVec
	LinkTransitions   *prometheus.CounterVec
	SuggestionsTotal  *prometheus.CounterVec

	// Health metrics
	HealthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initJobMetrics(factory)
	m.initContentMetrics(factory)
	m.initLinkMetrics(factory)

	m.HealthChecksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Link health checks by link type and result",
		},
		[]string{"link_type", "result"},
	)

	return m
}

func (m *Metrics) initJobMetrics(factory promauto.Factory) {
	m.JobRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Job runs by job name and outcome",
		},
		[]string{"job", "outcome"},
	)

	m.JobDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of job runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		},
		[]string{"job"},
	)
}

func (m *Metrics) initContentMetrics(factory promauto.Factory) {
	m.ContentIndexed = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "content",
			Name:      "records",
			Help:      "Content records stored per origin after the last replacement",
		},
		[]string{"origin"},
	)

	m.PeerSyncTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "peer",
			Name:      "sync_total",
			Help:      "Peer sync attempts by result",
		},
		[]string{"result"},
	)
}

func (m *Metrics) initLinkMetrics(factory promauto.Factory) {
	m.InjectionOutcomes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "links",
			Name:      "injection_outcomes_total",
			Help:      "Link injector outcomes per suggestion",
		},
		[]string{"outcome"},
	)

	m.LinkTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "links",
			Name:      "transitions_total",
			Help:      "Pending link status transitions by target status",
		},
		[]string{"to"},
	)

	m.SuggestionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "links",
			Name:      "suggestions_total",
			Help:      "Imported suggestion entries by result",
		},
		[]string{"result"},
	)
}

// RecordJob counts one job run and observes its duration.
func (m *Metrics) RecordJob(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDurationSeconds.WithLabelValues(job).Observe(d.Seconds())
}

// SetContentRecords records the size of an origin after replacement.
func (m *Metrics) SetContentRecords(origin string, n int) {
	if m == nil {
		return
	}
	m.ContentIndexed.WithLabelValues(origin).Set(float64(n))
}

// RecordPeerSync counts one peer sync attempt.
func (m *Metrics) RecordPeerSync(result string) {
	if m == nil {
		return
	}
	m.PeerSyncTotal.WithLabelValues(result).Inc()
}

// RecordInjection counts one injector outcome.
func (m *Metrics) RecordInjection(outcome string) {
	if m == nil {
		return
	}
	m.InjectionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTransitions counts n links moved to status to.
func (m *Metrics) RecordTransitions(to string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.LinkTransitions.WithLabelValues(to).Add(float64(n))
}

// RecordSuggestions counts valid and rejected suggestion entries.
func (m *Metrics) RecordSuggestions(valid, rejected int) {
	if m == nil {
		return
	}
	m.SuggestionsTotal.WithLabelValues("valid").Add(float64(valid))
	m.SuggestionsTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordCheck counts one health check.
func (m *Metrics) RecordCheck(linkType, result string) {
	if m == nil {
		return
	}
	m.HealthChecksTotal.WithLabelValues(linkType, result).Inc()
}
