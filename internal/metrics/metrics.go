// Package metrics exposes Prometheus collectors for the page monitor.
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
	checksTotal                *prometheus.CounterVec
	checkDurationSeconds       prometheus.Histogram
	notificationsTotal         *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	passesTotal                *prometheus.CounterVec
	headlessActive             prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		checksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_checks_total",
				Help: "Total number of target checks, labeled by result (unchanged, changed, failed).",
			},
			[]string{"result"},
		)

		checkDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagewatch_check_duration_seconds",
				Help:    "Histogram of end-to-end check latency.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_notifications_total",
				Help: "Total number of change notifications, labeled by delivery outcome.",
			},
			[]string{"delivered"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_fetch_attempts_total",
				Help: "Total number of fetch strategy invocations, labeled by strategy and status.",
			},
			[]string{"strategy", "status"},
		)

		passesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagewatch_passes_total",
				Help: "Total number of check passes, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		headlessActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagewatch_headless_active",
				Help: "Number of headless browser fetches in flight.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagewatch_rate_limit_delay_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveCheck records the outcome and latency of one target check.
func ObserveCheck(result string, duration time.Duration) {
	Init()
	checksTotal.WithLabelValues(result).Inc()
	checkDurationSeconds.Observe(duration.Seconds())
}

// ObserveNotification records whether a change notification was delivered.
func ObserveNotification(delivered bool) {
	Init()
	notificationsTotal.WithLabelValues(strconv.FormatBool(delivered)).Inc()
}

// ObserveFetchAttempt records a single strategy invocation.
func ObserveFetchAttempt(strategy string, err error) {
	Init()
	status := "success"
	if err != nil {
		status = "error"
	}
	fetchAttemptsTotal.WithLabelValues(strategy, status).Inc()
}

// ObservePass records a completed or aborted pass.
func ObservePass(mode string, err error) {
	Init()
	status := "success"
	if err != nil {
		status = "error"
	}
	passesTotal.WithLabelValues(mode, status).Inc()
}

// IncHeadlessActive increments the in-flight headless gauge.
func IncHeadlessActive() {
	Init()
	headlessActive.Inc()
}

// DecHeadlessActive decrements the in-flight headless gauge.
func DecHeadlessActive() {
	Init()
	headlessActive.Dec()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
