package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Mikkel102454/storage-selfhosted/internal/storage"
)

// scrapeTimeout bounds the staging directory scan done on each scrape.
const scrapeTimeout = 5 * time.Second

// StagingLister is the part of storage.Backend the collector needs.
type StagingLister interface {
	ListStaging(ctx context.Context) ([]storage.StagingEntry, error)
}

// UploadsCollector reports upload state on each scrape: live sessions from the
// registry and staging files found on disk.
type UploadsCollector struct {
	sessions func() int
	store    StagingLister

	activeSessions *prometheus.Desc
	stagingFiles   *prometheus.Desc
	stagingBytes   *prometheus.Desc
}

// NewUploadsCollector creates a new collector. sessions returns the live session count.
func NewUploadsCollector(sessions func() int, store StagingLister) *UploadsCollector {
	return &UploadsCollector{
		sessions: sessions,
		store:    store,
		activeSessions: prometheus.NewDesc(
			"storage_active_upload_sessions",
			"Number of upload sessions currently tracked in memory",
			nil, nil,
		),
		stagingFiles: prometheus.NewDesc(
			"storage_staging_files",
			"Number of staging files on disk",
			nil, nil,
		),
		stagingBytes: prometheus.NewDesc(
			"storage_staging_bytes",
			"Total size of staging files on disk in bytes",
			nil, nil,
		),
	}
}

// Describe sends metric descriptors to Prometheus
func (c *UploadsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessions
	ch <- c.stagingFiles
	ch <- c.stagingBytes
}

// Collect reads the current values and sends them to Prometheus
func (c *UploadsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	var files, bytes int64
	entries, err := c.store.ListStaging(ctx)
	if err != nil {
		// Zero values keep the scrape from failing
		slog.Error("failed to list staging files for metrics", "error", err)
	} else {
		for _, e := range entries {
			files++
			bytes += e.Size
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.activeSessions,
		prometheus.GaugeValue,
		float64(c.sessions()),
	)

	ch <- prometheus.MustNewConstMetric(
		c.stagingFiles,
		prometheus.GaugeValue,
		float64(files),
	)

	ch <- prometheus.MustNewConstMetric(
		c.stagingBytes,
		prometheus.GaugeValue,
		float64(bytes),
	)
}
