// Package metrics exposes Prometheus instrumentation for the Catalog, SCP
// Receiver, and Coordinator, following the promauto style used throughout
// the example pack's business-metric packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksByStatus tracks the current count of Tasks in each status code,
	// refreshed by the Coordinator at the end of every iteration.
	TasksByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_tasks_by_status",
		Help: "Current number of tasks in each status.",
	}, []string{"status"})

	// PhaseDuration records wall-clock time spent in each Coordinator phase.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_phase_duration_seconds",
		Help:    "Duration of each coordinator phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	// CStoreTotal counts received C-STORE operations by outcome.
	CStoreTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cstore_total",
		Help: "Total C-STORE operations received by the SCP, by result.",
	}, []string{"result"})

	// FingerprintMatchesTotal counts Fingerprint matches produced by the Matcher.
	FingerprintMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_fingerprint_matches_total",
		Help: "Total fingerprint matches that produced a task.",
	})

	// DestinationSendTotal counts DICOM Sender attempts by outcome.
	DestinationSendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_destination_send_total",
		Help: "Total destination send attempts, by result.",
	}, []string{"result"})

	// CatalogErrorsTotal counts Catalog operation failures by operation name.
	// The Coordinator also counts inference-server post rejections here,
	// under op "post".
	CatalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_catalog_errors_total",
		Help: "Total catalog operation failures, by operation.",
	}, []string{"op"})

	// HandoffQueueDepth tracks the current depth of the SCP-to-Coordinator
	// handoff queue.
	HandoffQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_handoff_queue_depth",
		Help: "Current number of study groups waiting in the handoff queue.",
	})
)
