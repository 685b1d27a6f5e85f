package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the agent's own operational metrics.
type Telemetry struct {
	cycles          prometheus.Counter
	cycleDuration   prometheus.Histogram
	skippedTicks    prometheus.Counter
	accountFailures *prometheus.CounterVec
	metricsReported prometheus.Counter
	sinkErrors      prometheus.Counter
}

// NewTelemetry registers the agent collectors on reg.
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "queuemonitor",
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles.",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queuemonitor",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		skippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "queuemonitor",
			Name:      "skipped_ticks_total",
			Help:      "Ticks dropped because the previous cycle was still running.",
		}),
		accountFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queuemonitor",
			Name:      "account_failures_total",
			Help:      "Account polls that returned an error.",
		}, []string{"kind"}),
		metricsReported: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "queuemonitor",
			Name:      "metrics_reported_total",
			Help:      "Metrics accepted by the sink.",
		}),
		sinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "queuemonitor",
			Name:      "sink_errors_total",
			Help:      "Failed sink writes and flushes.",
		}),
	}
}
