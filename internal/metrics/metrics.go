// Package metrics exposes Prometheus collectors for the ingestion service.
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
	upstreamFetchesTotal       *prometheus.CounterVec
	upstreamBytesTotal         *prometheus.CounterVec
	upstreamHeadlessTotal      *prometheus.CounterVec
	upstreamRateLimitDelays    *prometheus.HistogramVec
	ingestRecordsTotal         *prometheus.CounterVec
	ingestJobsTotal            *prometheus.CounterVec
	ingestActiveJobs           prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		upstreamFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hadith_upstream_fetches_total",
				Help: "Upstream section fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		upstreamBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hadith_upstream_bytes_total",
				Help: "Bytes fetched from upstream sources, labeled by site.",
			},
			[]string{"site"},
		)

		upstreamHeadlessTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hadith_upstream_headless_promotions_total",
				Help: "Fetches retried through the headless browser, labeled by site.",
			},
			[]string{"site"},
		)

		upstreamRateLimitDelays = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hadith_upstream_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hadith_ingest_records_total",
				Help: "Reconciled records, labeled by collection and action.",
			},
			[]string{"collection", "action"},
		)

		ingestJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hadith_ingest_jobs_total",
				Help: "Job trigger outcomes (accepted, rejected, success, error), labeled by status.",
			},
			[]string{"status"},
		)

		ingestActiveJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hadith_ingest_active_jobs",
				Help: "Jobs accepted by the manager and not yet finished, queued or running.",
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
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
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

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one upstream fetch.
func ObserveFetch(rawURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	upstreamFetchesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		upstreamBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveHeadlessPromotion counts a fetch escalated to the headless browser.
func ObserveHeadlessPromotion(rawURL string) {
	Init()
	upstreamHeadlessTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	upstreamRateLimitDelays.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRecords adds n reconciled records under the given action.
func ObserveRecords(collection, action string, n int) {
	if n <= 0 {
		return
	}
	Init()
	ingestRecordsTotal.WithLabelValues(collection, action).Add(float64(n))
}

// ObserveJob counts a job trigger outcome.
func ObserveJob(status string) {
	Init()
	ingestJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveJobs counts a job the manager accepted.
func IncActiveJobs() {
	Init()
	ingestActiveJobs.Inc()
}

// DecActiveJobs releases a job the manager accepted.
func DecActiveJobs() {
	Init()
	ingestActiveJobs.Dec()
}

// ObserveHTTPRequest records one served API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
