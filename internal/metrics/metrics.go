// Package metrics exposes Prometheus collectors for the crawler.
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
	upstreamRequestsTotal          *prometheus.CounterVec
	upstreamRequestDurationSeconds *prometheus.HistogramVec
	entitiesSavedTotal             *prometheus.CounterVec
	entitiesPrunedTotal            *prometheus.CounterVec
	crawlFailuresTotal             *prometheus.CounterVec
	collectionsTotal               *prometheus.CounterVec
	activeCrawls                   prometheus.Gauge
	rateLimitDelaysSeconds         *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_upstream_requests_total",
				Help: "Total number of upstream API requests, labeled by entity kind and status code.",
			},
			[]string{"kind", "code"},
		)

		upstreamRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_upstream_request_duration_seconds",
				Help:    "Histogram of upstream request latencies, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		entitiesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_entities_saved_total",
				Help: "Total number of cache records written, labeled by entity kind.",
			},
			[]string{"kind"},
		)

		entitiesPrunedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_entities_pruned_total",
				Help: "Total number of stale cache records deleted, labeled by entity kind.",
			},
			[]string{"kind"},
		)

		crawlFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_crawl_failures_total",
				Help: "Total number of contained or fatal crawl failures, labeled by kind and class.",
			},
			[]string{"kind", "class"},
		)

		collectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_collections_total",
				Help: "Total number of collection reconciliations, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		activeCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_crawls",
				Help: "Number of entity crawls currently in flight.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of served HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObserveUpstreamRequest records one upstream API call. A code of 0 means the
// request failed before a response arrived.
func ObserveUpstreamRequest(kind, rawURL string, code int, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(kind, strconv.Itoa(code)).Inc()
	upstreamRequestDurationSeconds.WithLabelValues(SanitizeSite(rawURL)).Observe(duration.Seconds())
}

// ObserveSave counts a written cache record.
func ObserveSave(kind string) {
	Init()
	entitiesSavedTotal.WithLabelValues(kind).Inc()
}

// ObservePrune counts deleted stale cache records.
func ObservePrune(kind string, n int) {
	Init()
	if n > 0 {
		entitiesPrunedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveFailure counts a crawl failure of the given class.
func ObserveFailure(kind, class string) {
	Init()
	crawlFailuresTotal.WithLabelValues(kind, class).Inc()
}

// ObserveCollection counts a finished collection reconciliation.
func ObserveCollection(kind, outcome string) {
	Init()
	collectionsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncActiveCrawls increments the active crawls gauge.
func IncActiveCrawls() {
	Init()
	activeCrawls.Inc()
}

// DecActiveCrawls decrements the active crawls gauge.
func DecActiveCrawls() {
	Init()
	activeCrawls.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the API.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
