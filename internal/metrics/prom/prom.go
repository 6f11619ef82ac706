// Package prom implements a Prometheus backend for the metrics package.
package prom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maruel/insertd/internal/metrics"
)

// Backend keeps its collectors on a dedicated registry.
type Backend struct {
	reg      *prometheus.Registry
	writes   *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBackend registers the write metrics and the Go runtime collectors.
func NewBackend() *Backend {
	b := &Backend{
		reg: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.WritesTotal,
			Help: "Write requests by verb and outcome.",
		}, []string{"verb", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written by verb.",
		}, []string{"verb"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.WriteDurationSeconds,
			Help:    "Write request latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"verb"}),
	}
	b.reg.MustRegister(
		b.writes,
		b.rows,
		b.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return b
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{})
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.WritesTotal:
		b.writes.WithLabelValues(labels["verb"], labels["outcome"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["verb"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == metrics.WriteDurationSeconds {
		b.duration.WithLabelValues(labels["verb"]).Observe(value)
	}
}

var _ metrics.Backend = (*Backend)(nil)
