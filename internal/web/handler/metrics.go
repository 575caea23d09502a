package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	linkhubRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	linkhubRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkhub_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	linkhubPageLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_public_page_loads_total",
		Help: "Public page lookups by result (hit, found, not_found, error).",
	}, []string{"result"})

	linkhubSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkhub_sessions_active",
		Help: "Live session reconcilers.",
	})

	linkhubSessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkhub_sessions_evicted_total",
		Help: "Session reconcilers evicted after going idle.",
	})

	linkhubHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_health_checks_total",
		Help: "Total dependency deps by dependency and result.",
	}, []string{"dependency", "result"})

	linkhubTitleSuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_title_suggestions_total",
		Help: "Link title suggestions by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		linkhubRequestsTotal.WithLabelValues(method, path, status).Inc()
		linkhubRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordPageLoad records a public page lookup result.
func RecordPageLoad(result string) {
	linkhubPageLoadsTotal.WithLabelValues(result).Inc()
}

// RecordEvictions records reconcilers removed by a registry sweep.
func RecordEvictions(n int) {
	linkhubSessionsEvictedTotal.Add(float64(n))
}

// SetSessionsGauge sets the live reconciler gauge.
func SetSessionsGauge(n int) {
	linkhubSessionsActive.Set(float64(n))
}

// RecordHealthCheck records a dependency check result.
func RecordHealthCheck(dependency string, success bool) {
	if success {
		linkhubHealthChecksTotal.WithLabelValues(dependency, "success").Inc()
	} else {
		linkhubHealthChecksTotal.WithLabelValues(dependency, "failure").Inc()
	}
}

func recordSuggestion(result string) {
	linkhubTitleSuggestionsTotal.WithLabelValues(result).Inc()
}
