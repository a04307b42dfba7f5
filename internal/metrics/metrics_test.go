package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		ChunksTotal,
		ChunkBytesTotal,
		PromotionsTotal,
		SweptFilesTotal,
		DownloadsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CommittedSizeBytes,
		DownloadSizeBytes,
		SweepDuration,
		HealthStatus,
		HealthChecksTotal,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("Metric is nil")
		}
	}
}

func TestPromotionsTotal(t *testing.T) {
	// Counters are global and cumulative, so compare against the starting value
	initialSuccess := testutil.ToFloat64(PromotionsTotal.WithLabelValues("success"))
	initialConflict := testutil.ToFloat64(PromotionsTotal.WithLabelValues("conflict"))

	PromotionsTotal.WithLabelValues("success").Inc()
	PromotionsTotal.WithLabelValues("success").Inc()
	PromotionsTotal.WithLabelValues("conflict").Inc()

	if got := testutil.ToFloat64(PromotionsTotal.WithLabelValues("success")); got != initialSuccess+2 {
		t.Errorf("success promotions = %f, want %f", got, initialSuccess+2)
	}
	if got := testutil.ToFloat64(PromotionsTotal.WithLabelValues("conflict")); got != initialConflict+1 {
		t.Errorf("conflict promotions = %f, want %f", got, initialConflict+1)
	}
}

func TestChunkBytesTotal(t *testing.T) {
	initial := testutil.ToFloat64(ChunkBytesTotal)
	ChunkBytesTotal.Add(1024)
	if got := testutil.ToFloat64(ChunkBytesTotal); got != initial+1024 {
		t.Errorf("ChunkBytesTotal = %f, want %f", got, initial+1024)
	}
}

func TestHealthStatus(t *testing.T) {
	for _, v := range []float64{0, 1, 2} {
		HealthStatus.Set(v)
		if got := testutil.ToFloat64(HealthStatus); got != v {
			t.Errorf("HealthStatus = %f, want %f", got, v)
		}
	}
}
