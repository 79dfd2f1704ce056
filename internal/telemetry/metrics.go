package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the metrics interface the engine emits into.
type Sink interface {
	TrackLatency(name string, d time.Duration)
	TrackError(name string)
	IncrementCounter(name string)
}

// PromSink implements Sink on Prometheus collectors registered with the
// default registry, exposed on /metrics.
type PromSink struct {
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	counters *prometheus.CounterVec
}

func NewPromSink(namespace string) *PromSink {
	s := &PromSink{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Errors per engine operation.",
		}, []string{"operation"}),
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine event counts.",
		}, []string{"event"}),
	}

	prometheus.MustRegister(s.latency, s.errors, s.counters)
	return s
}

func (s *PromSink) TrackLatency(name string, d time.Duration) {
	s.latency.WithLabelValues(name).Observe(d.Seconds())
}

func (s *PromSink) TrackError(name string) {
	s.errors.WithLabelValues(name).Inc()
}

func (s *PromSink) IncrementCounter(name string) {
	s.counters.WithLabelValues(name).Inc()
}

// NopSink discards all metrics; used in tests.
type NopSink struct{}

func (NopSink) TrackLatency(string, time.Duration) {}
func (NopSink) TrackError(string)                  {}
func (NopSink) IncrementCounter(string)            {}
