// Package metrics provides a Prometheus-backed implementation of
// internal/obs.Meter for the ingress server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventmesh-go/httpingress/internal/obs"
)

// vecSchema pins the label dimensions for each metric name the ingress
// server emits. Prometheus vectors require a fixed label set per metric, so
// PrometheusMeter declares them up front instead of inferring them from
// whatever labels a caller happens to pass.
var vecSchema = map[string][]string{
	"http_requests_total":         {"route"},
	"http_discards_total":         {"route", "reason"},
	"decode_time_cost_ms":         {},
	"http_req_res_time_cost_ms":   {"route"},
	"circuit_breaker_trips_total": {"route"},
}

// PrometheusMeter implements obs.Meter on top of a private prometheus
// registry, using promauto vector construction under a namespace prefix.
type PrometheusMeter struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMeter builds a meter with all known counters/histograms
// pre-registered under namespace (default "eventmesh_ingress").
func NewPrometheusMeter(namespace string) *PrometheusMeter {
	if namespace == "" {
		namespace = "eventmesh_ingress"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &PrometheusMeter{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	m.counters["http_requests_total"] = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of requests that passed validation.",
	}, vecSchema["http_requests_total"])

	m.counters["http_discards_total"] = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_discards_total",
		Help:      "Total number of requests discarded due to worker pool overload.",
	}, vecSchema["http_discards_total"])

	m.counters["circuit_breaker_trips_total"] = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_trips_total",
		Help:      "Total number of times a route's processor circuit breaker tripped open.",
	}, vecSchema["circuit_breaker_trips_total"])

	m.histograms["decode_time_cost_ms"] = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decode_time_cost_milliseconds",
		Help:      "Body decode latency in milliseconds.",
		Buckets:   []float64{.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, vecSchema["decode_time_cost_ms"])

	m.histograms["http_req_res_time_cost_ms"] = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_req_res_time_cost_milliseconds",
		Help:      "End-to-end request/response latency in milliseconds, measured from reqTime.",
		Buckets:   prometheus.DefBuckets,
	}, vecSchema["http_req_res_time_cost_ms"])

	return m
}

// Registry exposes the underlying prometheus.Registry, e.g. for a
// promhttp.HandlerFor call in an admin mux.
func (m *PrometheusMeter) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler serving this meter's registry at /metrics.
func (m *PrometheusMeter) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func labelValues(names []string, given []obs.Label) []string {
	values := make([]string, len(names))
	for i, name := range names {
		for _, l := range given {
			if l.Key == name {
				values[i] = l.Value
				break
			}
		}
	}
	return values
}

// Counter implements obs.Meter.
func (m *PrometheusMeter) Counter(name string, value float64, labels ...obs.Label) {
	cv, ok := m.counters[name]
	if !ok {
		return
	}
	names := vecSchema[name]
	cv.WithLabelValues(labelValues(names, labels)...).Add(value)
}

// Histogram implements obs.Meter.
func (m *PrometheusMeter) Histogram(name string, value float64, labels ...obs.Label) {
	hv, ok := m.histograms[name]
	if !ok {
		return
	}
	names := vecSchema[name]
	hv.WithLabelValues(labelValues(names, labels)...).Observe(value)
}
