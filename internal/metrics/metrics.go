// Package metrics exposes Prometheus collectors for the proxy service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	proxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_requests_total",
			Help: "Total number of proxy requests, labeled by cache status and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_fetches_total",
			Help: "Total number of upstream fetches, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_fetch_bytes_total",
			Help: "Total number of bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapeproxy_fetch_duration_seconds",
			Help:    "Histogram of upstream fetch latencies, labeled by site.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"site"},
	)

	inflightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrapeproxy_inflight_fetches",
			Help: "Number of upstream fetches currently in progress.",
		},
	)

	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_extractions_total",
			Help: "Total number of successful extractions, labeled by tier.",
		},
		[]string{"tier"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_cache_lookups_total",
			Help: "Total number of cache lookups, labeled by result.",
		},
		[]string{"result"},
	)

	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrapeproxy_cache_evictions_total",
			Help: "Total number of cache evictions, labeled by reason.",
		},
		[]string{"reason"},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scrapeproxy_cache_entries",
			Help: "Number of entries currently held in the result cache.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrapeproxy_rate_limit_delay_seconds",
			Help:    "Histogram of upstream rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
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
)

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

// ObserveProxyRequest counts one completed proxy request. outcome is
// "success" or an error kind.
func ObserveProxyRequest(cache, outcome string) {
	proxyRequestsTotal.WithLabelValues(cache, outcome).Inc()
}

// ObserveFetch records one upstream fetch.
func ObserveFetch(site, outcome string, bytesFetched int, duration time.Duration) {
	sanitizedSite := SanitizeSite(site)
	fetchesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(sanitizedSite).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// IncInflightFetches increments the in-flight fetch gauge.
func IncInflightFetches() {
	inflightFetches.Inc()
}

// DecInflightFetches decrements the in-flight fetch gauge.
func DecInflightFetches() {
	inflightFetches.Dec()
}

// ObserveExtraction counts a successful extraction by tier.
func ObserveExtraction(tier string) {
	extractionsTotal.WithLabelValues(tier).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// CacheObserver feeds cache events into the cache collectors.
type CacheObserver struct{}

// CacheLookup implements cache.Observer.
func (CacheObserver) CacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// CacheEvicted implements cache.Observer.
func (CacheObserver) CacheEvicted(reason string) {
	cacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// CacheSize implements cache.Observer.
func (CacheObserver) CacheSize(n int) {
	cacheEntries.Set(float64(n))
}
