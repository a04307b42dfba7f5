// Package metrics defines the Prometheus metrics of the storage server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// sizeBuckets covers 1 KB to 100 GB in powers of ten.
var sizeBuckets = []float64{
	1024,         // 1 KB
	10240,        // 10 KB
	102400,       // 100 KB
	1048576,      // 1 MB
	10485760,     // 10 MB
	104857600,    // 100 MB
	1073741824,   // 1 GB
	10737418240,  // 10 GB
	107374182400, // 100 GB
}

// Counter metrics (monotonically increasing)
var (
	// ChunksTotal counts chunk requests by result (accepted, duplicate, rejected, failed)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_chunks_total",
			Help: "Total number of upload chunks received",
		},
		[]string{"result"},
	)

	// ChunkBytesTotal counts bytes written into staging files
	ChunkBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_chunk_bytes_total",
			Help: "Total number of bytes written to staging files",
		},
	)

	// PromotionsTotal counts promotion attempts by result
	// (success, conflict, folder_not_found, insufficient_storage, reset, error)
	PromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_promotions_total",
			Help: "Total number of staging file promotions",
		},
		[]string{"result"},
	)

	// SweptFilesTotal counts staging files handled by the sweeper by result (deleted, failed)
	SweptFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_swept_files_total",
			Help: "Total number of stale staging files processed by the sweeper",
		},
		[]string{"result"},
	)

	// DownloadsTotal counts downloads by kind (full, partial) and failures
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_downloads_total",
			Help: "Total number of file downloads",
		},
		[]string{"status"},
	)

	// HTTPRequestsTotal counts total HTTP requests by method, path, and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// Histogram metrics (distributions)
var (
	// HTTPRequestDuration tracks HTTP request latency by method and path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// CommittedSizeBytes tracks the size of promoted artifacts
	CommittedSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storage_committed_size_bytes",
			Help:    "Distribution of committed file sizes in bytes",
			Buckets: sizeBuckets,
		},
	)

	// DownloadSizeBytes tracks the number of bytes served per download
	DownloadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storage_download_size_bytes",
			Help:    "Distribution of bytes served per download",
			Buckets: sizeBuckets,
		},
	)

	// SweepDuration tracks how long each sweep takes
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storage_sweep_duration_seconds",
			Help:    "Stale upload sweep duration in seconds",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 30},
		},
	)
)

// Gauge metrics that need live state are defined in collector.go

// Health check metrics
var (
	// HealthStatus is a gauge representing current health status
	// Values: 0 = unhealthy, 1 = degraded, 2 = healthy
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_health_status",
			Help: "Current health status (0=unhealthy, 1=degraded, 2=healthy)",
		},
	)

	// HealthChecksTotal counts total health check calls by status
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_health_checks_total",
			Help: "Total number of health checks performed",
		},
		[]string{"status"},
	)
)
