// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeRunsTotal            *prometheus.CounterVec
	scrapeJobsFound            prometheus.Histogram
	scrapeDurationSeconds      prometheus.Histogram
	scrapePagesTotal           *prometheus.CounterVec
	jobUpsertsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of scrape runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeJobsFound = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_jobs_found",
				Help:    "Distribution of job counts per scrape run.",
				Buckets: []float64{0, 5, 10, 25, 50, 100, 250},
			},
		)

		scrapeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of end-to-end scrape run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		scrapePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of pages fetched, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		jobUpsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_job_upserts_total",
				Help: "Total job rows written, labeled by operation.",
			},
			[]string{"operation"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome, size and duration of a scrape run. It is a
// no-op until Init has been called.
func ObserveRun(outcome string, jobsFound int, duration time.Duration) {
	if scrapeRunsTotal == nil {
		return
	}
	scrapeRunsTotal.WithLabelValues(outcome).Inc()
	scrapeJobsFound.Observe(float64(jobsFound))
	scrapeDurationSeconds.Observe(duration.Seconds())
}

// ObservePage increments the page fetch counter.
func ObservePage(kind, status string) {
	if scrapePagesTotal == nil {
		return
	}
	scrapePagesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveUpsert increments the row write counter for "insert" or "update".
func ObserveUpsert(operation string) {
	if jobUpsertsTotal == nil {
		return
	}
	jobUpsertsTotal.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
