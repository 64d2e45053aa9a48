package local

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "bridge"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of accounts delegated to the rollup.
	Delegations metrics.Counter
	// Number of commits scheduled, by kind (commit, undelegate, auto).
	CommitsScheduled metrics.Counter
	// Number of commits written to the base layer.
	CommitsApplied metrics.Counter
	// Number of accounts returned to the base layer.
	Undelegations metrics.Counter
	// Number of commits that kept failing, by kind (commit, undelegate).
	CommitsFailed metrics.Counter
	// Commits waiting in the queue.
	PendingCommits metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Delegations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "delegations_total",
			Help:      "Number of accounts delegated to the rollup.",
		}, labels).With(labelsAndValues...),
		CommitsScheduled: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commits_scheduled_total",
			Help:      "Number of commits scheduled.",
		}, append(labels, "kind")).With(labelsAndValues...),
		CommitsApplied: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commits_applied_total",
			Help:      "Number of commits written to the base layer.",
		}, labels).With(labelsAndValues...),
		Undelegations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "undelegations_total",
			Help:      "Number of accounts returned to the base layer.",
		}, labels).With(labelsAndValues...),
		CommitsFailed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "commits_failed_total",
			Help:      "Number of commits that exhausted their attempts.",
		}, append(labels, "kind")).With(labelsAndValues...),
		PendingCommits: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending_commits",
			Help:      "Commits waiting to be written to the base layer.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Delegations:      discard.NewCounter(),
		CommitsScheduled: discard.NewCounter(),
		CommitsApplied:   discard.NewCounter(),
		Undelegations:    discard.NewCounter(),
		CommitsFailed:    discard.NewCounter(),
		PendingCommits:   discard.NewGauge(),
	}
}
