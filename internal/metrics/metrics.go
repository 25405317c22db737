// Package metrics exposes Prometheus collectors for the review analyzer service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	reviewPagesTotal           *prometheus.CounterVec
	productInfoFallbacksTotal  *prometheus.CounterVec
	browserSessionsActive      prometheus.Gauge
	queueDepth                 prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		reviewPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_review_pages_total",
				Help: "Total number of review listing pages walked, labeled by site.",
			},
			[]string{"site"},
		)

		productInfoFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyzer_product_info_fallbacks_total",
				Help: "Product pages whose info could not be read and fell back to the placeholder.",
			},
			[]string{"platform"},
		)

		browserSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_browser_sessions_active",
				Help: "Number of browser sessions currently open.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "analyzer_queue_depth",
				Help: "Number of analyses waiting for a worker.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyzer_rate_limit_delay_seconds",
				Help:    "Time page loads spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveReviewPage counts one walked review page for the product URL's host.
func ObserveReviewPage(productURL string) {
	Init()
	reviewPagesTotal.WithLabelValues(SanitizeSite(productURL)).Inc()
}

// ObserveProductInfoFallback counts a placeholder substitution.
func ObserveProductInfoFallback(platform string) {
	Init()
	productInfoFallbacksTotal.WithLabelValues(platform).Inc()
}

// IncBrowserSessions increments the open browser sessions gauge.
func IncBrowserSessions() {
	Init()
	browserSessionsActive.Inc()
}

// DecBrowserSessions decrements the open browser sessions gauge.
func DecBrowserSessions() {
	Init()
	browserSessionsActive.Dec()
}

// SetQueueDepth records the number of pending analyses.
func SetQueueDepth(n int) {
	Init()
	queueDepth.Set(float64(n))
}

// ObserveRateLimitDelay records time spent waiting for a host token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
