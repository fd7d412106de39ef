// Package observability holds the Prometheus metrics for crm-assistant.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "crm_assistant"

// Collector holds all Prometheus metrics for the service.
// Each collector owns its registry so tests can create as many as they need.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Query metrics
	Asks          *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	StreamTokens  prometheus.Counter
}

// NewCollector creates a collector with Go runtime and process metrics included.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Asks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "asks_total",
				Help:      "Questions answered, by mode and outcome kind",
			},
			[]string{"mode", "outcome"},
		),
		ModelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "model_duration_seconds",
				Help:      "Time spent waiting for the model",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"mode"},
		),
		StreamTokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "stream_tokens_total",
				Help:      "Token events delivered to streaming clients",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Asks,
		c.ModelDuration,
		c.StreamTokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RegisterGaugeFunc exposes a value computed at scrape time.
func (c *Collector) RegisterGaugeFunc(name, help string, fn func() float64) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: Namespace, Name: name, Help: help},
		fn,
	))
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordAsk counts one finished question. A nil collector is a no-op.
func (c *Collector) RecordAsk(mode, outcome string) {
	if c == nil {
		return
	}
	c.Asks.WithLabelValues(mode, outcome).Inc()
}

// ObserveModel records model latency.
func (c *Collector) ObserveModel(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.ModelDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// AddStreamTokens counts delivered token events.
func (c *Collector) AddStreamTokens(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.StreamTokens.Add(float64(n))
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
