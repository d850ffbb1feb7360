package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media engine metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "uploads_total",
			Help:      "Total file uploads",
		},
		[]string{"content_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)

	DedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "dedup_hits_total",
			Help:      "Uploads resolved by content-hash deduplication",
		},
	)

	VariantDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "variant_generation_seconds",
			Help:      "Variant generation duration per media in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "storage_operations_total",
			Help:      "Total blob store operations",
		},
		[]string{"operation", "status"},
	)

	GCRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "gc_runs_total",
			Help:      "Total garbage collector sweeps",
		},
	)

	GCActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "gc_actions_total",
			Help:      "Garbage collector actions by phase",
		},
		[]string{"action"},
	)

	GCBytesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "canvas",
			Subsystem: "media_engine",
			Name:      "gc_bytes_reclaimed_total",
			Help:      "Total bytes physically reclaimed by the garbage collector",
		},
	)
)

// RecordUpload records a file upload.
func RecordUpload(contentType, status string, bytes int64) {
	UploadsTotal.WithLabelValues(contentType, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(contentType).Add(float64(bytes))
	}
}

// RecordStorageOperation records a blob store operation.
func RecordStorageOperation(operation, status string) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordGCAction records one unit of garbage collector work.
func RecordGCAction(action string) {
	GCActionsTotal.WithLabelValues(action).Inc()
}
