package bwapp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/advdv/bworker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
)

const metricsNamespace = "bworker"

// Metrics holds the request metrics of the app in its own registry.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them together with the Go and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Number of requests served by the router.",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in middleware and handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware observes every request that reaches the middleware chain of a route.
func Middleware[E bworker.Environment](m *Metrics) bworker.Middleware[E] {
	return func(c *bworker.Context[E], next bworker.Next) (*bworker.Response, error) {
		start := time.Now()
		route := lo.Ternary(c.Request.Pattern != "", c.Request.Pattern, "unmatched")

		resp, err := next()

		status := http.StatusInternalServerError
		switch {
		case err == nil && resp != nil:
			status = resp.Status
		case bworker.CodeOf(err) != bworker.CodeUnknown:
			status = int(bworker.CodeOf(err))
		}

		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())

		return resp, err
	}
}
