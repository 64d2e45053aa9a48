package processor

import (
	"errors"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/rollkit/ephemeral-counter/types"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "processor"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of processed instructions by command and result.
	Instructions metrics.Counter
	// Time spent executing a decoded instruction.
	ProcessingTime metrics.Histogram
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
		Instructions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "instructions_total",
			Help:      "Number of processed instructions.",
		}, append(labels, "instruction", "result")).With(labelsAndValues...),
		ProcessingTime: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "instruction_processing_seconds",
			Help:      "Time spent executing an instruction.",
			Buckets:   stdprometheus.ExponentialBuckets(0.00001, 4, 8),
		}, append(labels, "instruction")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Instructions:   discard.NewCounter(),
		ProcessingTime: discard.NewHistogram(),
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var pe types.ProgramError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return "bridge_error"
}
