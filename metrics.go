package filekeep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the service and the reconciler.
type Metrics struct {
	uploadsTotal          *prometheus.CounterVec
	uploadBytesTotal      prometheus.Counter
	downloadsTotal        prometheus.Counter
	inconsistentReads     prometheus.Counter
	cleanupErrorsTotal    *prometheus.CounterVec
	reconcileRunsTotal    *prometheus.CounterVec
	reconcileActionsTotal *prometheus.CounterVec
	reconcileDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		uploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeep_uploads_total",
			Help: "Uploads by outcome",
		}, []string{"result"}),
		uploadBytesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "filekeep_upload_bytes_total",
			Help: "Bytes committed by finalized uploads",
		}),
		downloadsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "filekeep_downloads_total",
			Help: "Download streams opened",
		}),
		inconsistentReads: f.NewCounter(prometheus.CounterOpts{
			Name: "filekeep_inconsistent_reads_total",
			Help: "Finalized records whose blob was missing on read",
		}),
		cleanupErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeep_cleanup_errors_total",
			Help: "Best effort cleanup steps that failed",
		}, []string{"op"}),
		reconcileRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeep_reconcile_runs_total",
			Help: "Reconciler runs by outcome",
		}, []string{"result"}),
		reconcileActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "filekeep_reconcile_actions_total",
			Help: "Repairs performed by the reconciler",
		}, []string{"action"}),
		reconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "filekeep_reconcile_duration_seconds",
			Help:    "Duration of reconciler runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}
