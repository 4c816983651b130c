package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calcforest"

// Collector owns the application's Prometheus registry. A nil *Collector is
// valid and records nothing, so callers never need to check whether metrics
// are enabled.
type Collector struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	calculations  *prometheus.CounterVec
	registrations prometheus.Counter
	logins        *prometheus.CounterVec
	feedClients   prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_created_total",
			Help:      "Total number of calculations created, by operation.",
		}, []string{"operation"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_registered_total",
			Help:      "Total number of registered users.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total number of login attempts, by outcome.",
		}, []string{"outcome"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Current number of connected feed clients.",
		}),
	}

	c.registry.MustRegister(
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		c.calculations,
		c.registrations,
		c.logins,
		c.feedClients,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RequestStarted increments the in-flight gauge and returns a func that
// records the finished request.
func (c *Collector) RequestStarted(method, route string) func(status int) {
	if c == nil {
		return func(int) {}
	}
	start := time.Now()
	c.httpInFlight.Inc()
	return func(status int) {
		c.httpInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// CalculationCreated counts a new node. Roots are labelled "start".
func (c *Collector) CalculationCreated(operation string) {
	if c == nil {
		return
	}
	if operation == "" {
		operation = "start"
	}
	c.calculations.WithLabelValues(operation).Inc()
}

func (c *Collector) UserRegistered() {
	if c == nil {
		return
	}
	c.registrations.Inc()
}

func (c *Collector) LoginAttempt(success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) FeedClientConnected() {
	if c == nil {
		return
	}
	c.feedClients.Inc()
}

func (c *Collector) FeedClientDisconnected() {
	if c == nil {
		return
	}
	c.feedClients.Dec()
}
