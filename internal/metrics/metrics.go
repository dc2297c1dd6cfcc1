package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for pagesend
type Metrics struct {
	// HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// Uploads and matching
	UploadsTotal         *prometheus.CounterVec
	PagesExtractedTotal  prometheus.Counter
	PagesMatchedTotal    prometheus.Counter
	UploadSessions       prometheus.Gauge
	UploadSessionEvicted prometheus.Counter

	// Dispatch
	DispatchItemsTotal     *prometheus.CounterVec
	DispatchDuration       prometheus.Histogram
	RateLimitExceededTotal *prometheus.CounterVec

	// Directory
	DirectoryRecipients prometheus.Gauge
	ImportRowsTotal     *prometheus.CounterVec

	// System
	UptimeSeconds    prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesend_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_uploads_total",
				Help: "Total number of uploaded documents",
			},
			[]string{"result"},
		),
		PagesExtractedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesend_pages_extracted_total",
				Help: "Total number of pages whose text was extracted",
			},
		),
		PagesMatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesend_pages_matched_total",
				Help: "Total number of pages matched to a recipient",
			},
		),
		UploadSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesend_upload_sessions",
				Help: "Number of live upload sessions",
			},
		),
		UploadSessionEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesend_upload_sessions_evicted_total",
				Help: "Total number of upload sessions evicted by capacity or TTL",
			},
		),

		DispatchItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_dispatch_items_total",
				Help: "Total number of dispatched selections by status",
			},
			[]string{"status"},
		),
		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagesend_dispatch_item_duration_seconds",
				Help:    "Time spent splitting and sending one page",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_ratelimit_exceeded_total",
				Help: "Total number of sends denied by the rate limiter",
			},
			[]string{"level"},
		),

		DirectoryRecipients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesend_directory_recipients",
				Help: "Number of recipients in the directory",
			},
		),
		ImportRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesend_import_rows_total",
				Help: "Total number of spreadsheet rows seen by imports",
			},
			[]string{"outcome"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesend_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesend_storage_used_bytes",
				Help: "Size of the on-disk stores in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.UploadsTotal,
		m.PagesExtractedTotal,
		m.PagesMatchedTotal,
		m.UploadSessions,
		m.UploadSessionEvicted,
		m.DispatchItemsTotal,
		m.DispatchDuration,
		m.RateLimitExceededTotal,
		m.DirectoryRecipients,
		m.ImportRowsTotal,
		m.UptimeSeconds,
		m.StorageUsedBytes,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncUploads counts an upload by result (ok, invalid, error)
func IncUploads(result string) {
	if m := Global(); m != nil {
		m.UploadsTotal.WithLabelValues(result).Inc()
	}
}

// AddPages records extracted and matched page counts of one upload
func AddPages(extracted, matched int) {
	if m := Global(); m != nil {
		m.PagesExtractedTotal.Add(float64(extracted))
		m.PagesMatchedTotal.Add(float64(matched))
	}
}

// SetUploadSessions sets the live session gauge
func SetUploadSessions(n int) {
	if m := Global(); m != nil {
		m.UploadSessions.Set(float64(n))
	}
}

// IncUploadSessionEvicted counts an evicted session
func IncUploadSessionEvicted() {
	if m := Global(); m != nil {
		m.UploadSessionEvicted.Inc()
	}
}

// IncDispatchItem counts a dispatch result by status
func IncDispatchItem(status string) {
	if m := Global(); m != nil {
		m.DispatchItemsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveDispatchDuration records the time spent on one dispatch item
func ObserveDispatchDuration(seconds float64) {
	if m := Global(); m != nil {
		m.DispatchDuration.Observe(seconds)
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	if m := Global(); m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// SetDirectoryRecipients sets the directory size gauge
func SetDirectoryRecipients(n int) {
	if m := Global(); m != nil {
		m.DirectoryRecipients.Set(float64(n))
	}
}

// AddImportRows counts imported and skipped rows
func AddImportRows(processed, skipped int) {
	if m := Global(); m != nil {
		m.ImportRowsTotal.WithLabelValues("processed").Add(float64(processed))
		m.ImportRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}
