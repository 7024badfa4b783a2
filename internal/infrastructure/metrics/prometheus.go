// Package metrics exports workflow activity as Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements port.Metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
}

var _ port.Metrics = (*Recorder)(nil)

// NewRecorder registers the workflow series plus Go and process collectors
func NewRecorder(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Workflow operations by outcome code.",
		}, []string{"operation", "kind", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Workflow operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation", "kind"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed status transitions.",
		}, []string{"kind", "from", "to"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		}, []string{"kind", "event_type", "result"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Item cache lookups by result.",
		}, []string{"result"}),
	}
}

func (r *Recorder) ObserveOperation(operation, kind, code string, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, kind, code).Inc()
	r.latency.WithLabelValues(operation, kind).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveTransition(kind, from, to string) {
	r.transitions.WithLabelValues(kind, from, to).Inc()
}

func (r *Recorder) ObserveNotification(kind, eventType string, delivered bool) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	r.notifications.WithLabelValues(kind, eventType, result).Inc()
}

func (r *Recorder) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, for tests and extra collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
