// Package telemetry exposes the server's Prometheus metrics: HTTP request
// counts and latencies, claim query latencies, search result sizes and
// database pool gauges.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bluebutton"

// TelemetryConfig holds all configuration for the telemetry provider.
type TelemetryConfig struct {
	ServiceVersion string
	Environment    string
	MetricsEnabled *bool // nil = use default (true)
}

func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a convenience helper for TelemetryConfig's optional flags.
func BoolPtr(b bool) *bool {
	return &b
}

// defaultDurationBuckets are the bucket boundaries, in seconds, for HTTP
// request and claim query durations.
var defaultDurationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0,
}

// TelemetryProvider owns a private registry and every metric the server
// records. The Observe methods are no-ops on a nil provider.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	activeRequests prometheus.Gauge
	claimQueries   *prometheus.HistogramVec
	searchResults  prometheus.Histogram
	accessEvents   *prometheus.CounterVec
}

// NewTelemetryProvider creates the provider and registers its metrics along
// with the Go runtime and process collectors.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build and deployment information.",
	}, []string{"version", "environment"}).WithLabelValues(cfg.ServiceVersion, cfg.Environment).Set(1)

	return &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "path"}),
		activeRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of HTTP requests being served.",
		}),
		claimQueries: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "claim_query_duration_seconds",
			Help:      "Duration of claim lookups by query and claim type.",
			Buckets:   defaultDurationBuckets,
		}, []string{"query", "claim_type"}), // query: "eob_by_id", "eobs_by_patient"
		searchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of resources matched by a search before paging.",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		accessEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phi_access_total",
			Help:      "Audited resource accesses by resource type, action and status code.",
		}, []string{"resource_type", "action", "status"}),
	}
}

// Registry returns the registry the provider's metrics live in.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObserveClaimQuery records how long one claim lookup took.
func (tp *TelemetryProvider) ObserveClaimQuery(query, claimType string, d time.Duration) {
	if tp != nil {
		tp.claimQueries.WithLabelValues(query, claimType).Observe(d.Seconds())
	}
}

// ObserveSearchResults records the size of a merged search result.
func (tp *TelemetryProvider) ObserveSearchResults(n int) {
	if tp != nil {
		tp.searchResults.Observe(float64(n))
	}
}

// ObserveAccess counts one audited resource access.
func (tp *TelemetryProvider) ObserveAccess(resourceType, action string, status int) {
	if tp != nil {
		tp.accessEvents.WithLabelValues(resourceType, action, strconv.Itoa(status)).Inc()
	}
}

// PoolStatFunc reports the database pool's acquired, idle and total
// connection counts.
type PoolStatFunc func() (acquired, idle, total int32)

// WatchPool exports the pool counts as gauges read at scrape time.
func (tp *TelemetryProvider) WatchPool(stat PoolStatFunc) {
	gauge := func(name, help string, pick func(a, i, t int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(stat()))
		})
	}
	tp.registry.MustRegister(
		gauge("acquired_connections", "Connections currently in use.", func(a, _, _ int32) int32 { return a }),
		gauge("idle_connections", "Connections idle in the pool.", func(_, i, _ int32) int32 { return i }),
		gauge("total_connections", "Connections open in the pool.", func(_, _, t int32) int32 { return t }),
	)
}

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.activeRequests.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let echo render the error so the recorded status is final.
				c.Error(err)
				err = nil
			}

			tp.activeRequests.Dec()

			// Route pattern, not the raw path, to keep label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			tp.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			tp.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// PrometheusHandler returns an Echo handler that serves the registry in the
// Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{
		Registry: tp.registry,
	}))
}
