package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Artifact metrics
	UploadsTotal      *prometheus.CounterVec
	DownloadsTotal    *prometheus.CounterVec
	ArchiveMovesTotal *prometheus.CounterVec

	// Auth metrics
	LoginAttemptsTotal *prometheus.CounterVec

	// Audit metrics
	AuditWriteFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artifact_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_uploads_total",
				Help: "Total number of artifact uploads",
			},
			[]string{"file_type", "status"},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_downloads_total",
				Help: "Total number of artifact downloads",
			},
			[]string{"file_type"},
		),
		ArchiveMovesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_archive_moves_total",
				Help: "Total number of files moved from current to history",
			},
			[]string{"status"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "artifact_login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"},
		),
		AuditWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "artifact_audit_write_failures_total",
				Help: "Total number of audit entries that could not be persisted",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.UploadsTotal,
		m.DownloadsTotal,
		m.ArchiveMovesTotal,
		m.LoginAttemptsTotal,
		m.AuditWriteFailuresTotal,
	)

	return m
}

// NewDefaultMetrics creates metrics on a fresh registry with Go and process collectors
func NewDefaultMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetrics(registry)
}

// Handler returns the /metrics handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordUpload(fileType, status string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(fileType, status).Inc()
}

func (m *Metrics) RecordDownload(fileType string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(fileType).Inc()
}

func (m *Metrics) RecordArchiveMove(status string) {
	if m == nil {
		return
	}
	m.ArchiveMovesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordLogin(status string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailuresTotal.Inc()
}
