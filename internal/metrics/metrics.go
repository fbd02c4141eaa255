// Package metrics exposes Prometheus collectors for the scraper service.
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
	scraperRequestsTotal          *prometheus.CounterVec
	scraperDispatchTotal          *prometheus.CounterVec
	scraperExtractionsTotal       *prometheus.CounterVec
	scraperRenderSeconds          *prometheus.HistogramVec
	scraperStoreWritesTotal       *prometheus.CounterVec
	scraperVerificationsTotal     *prometheus.CounterVec
	scraperNotificationsTotal     *prometheus.CounterVec
	scraperBackgroundTasks        prometheus.Gauge
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	scraperBlockedPagesTotal      *prometheus.CounterVec
	scraperExtractorFailuresTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		scraperRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_requests_total",
				Help: "Scrape requests received, labeled by outcome (accepted, rejected, error).",
			},
			[]string{"outcome"},
		)
		scraperDispatchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_dispatch_total",
				Help: "Accepted jobs by execution route (handoff, fallback).",
			},
			[]string{"route"},
		)
		scraperExtractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extractions_total",
				Help: "Orchestrator runs, labeled by site, page type and status.",
			},
			[]string{"site", "page_type", "status"},
		)
		scraperRenderSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_render_duration_seconds",
				Help:    "Time spent loading pages, labeled by rendering method.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"method"},
		)
		scraperStoreWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_store_writes_total",
				Help: "Result store writes, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		scraperVerificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_verifications_total",
				Help: "Verification calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		scraperNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_notifications_total",
				Help: "Result webhook deliveries, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		scraperBackgroundTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_background_tasks",
				Help: "In-process fallback tasks currently running or waiting for a slot.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		scraperBlockedPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_blocked_pages_total",
				Help: "Pages that showed login or signup markers after load, labeled by site.",
			},
			[]string{"site"},
		)
		scraperExtractorFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extractor_failures_total",
				Help: "Field extractors that failed and fell back to their default, labeled by field.",
			},
			[]string{"field"},
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
	Init()
	return promhttp.Handler()
}

// ObserveRequest counts an inbound scrape request.
func ObserveRequest(outcome string) {
	Init()
	scraperRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDispatch counts the route an accepted job took.
func ObserveDispatch(route string) {
	Init()
	scraperDispatchTotal.WithLabelValues(route).Inc()
}

// ObserveExtraction counts a finished orchestrator run.
func ObserveExtraction(site, pageType, status string) {
	Init()
	scraperExtractionsTotal.WithLabelValues(SanitizeSite(site), pageType, status).Inc()
}

// ObserveRender records how long a page load took.
func ObserveRender(method string, d time.Duration) {
	Init()
	scraperRenderSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveStoreWrite counts a result store write.
func ObserveStoreWrite(outcome string) {
	Init()
	scraperStoreWritesTotal.WithLabelValues(outcome).Inc()
}

// ObserveVerification counts a verification call.
func ObserveVerification(outcome string) {
	Init()
	scraperVerificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a webhook delivery.
func ObserveNotification(outcome string) {
	Init()
	scraperNotificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBlockedPage counts a page that looked like a login wall.
func ObserveBlockedPage(site string) {
	Init()
	scraperBlockedPagesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveExtractorFailure counts a recovered field extractor failure.
func ObserveExtractorFailure(field string) {
	Init()
	scraperExtractorFailuresTotal.WithLabelValues(field).Inc()
}

// IncBackgroundTasks increments the background task gauge.
func IncBackgroundTasks() {
	Init()
	scraperBackgroundTasks.Inc()
}

// DecBackgroundTasks decrements the background task gauge.
func DecBackgroundTasks() {
	Init()
	scraperBackgroundTasks.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
