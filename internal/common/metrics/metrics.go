// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_worker_reports_processed_total",
			Help: "Total number of queue items processed to completion",
		},
		[]string{"charted"},
	)

	ReportsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_worker_reports_failed_total",
			Help: "Total number of queue items that ended in error",
		},
		[]string{"error_code"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "report_worker_batch_duration_seconds",
			Help: "Duration of one poller batch in seconds",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_worker_batch_size",
			Help:    "Number of queue items fetched per poller tick",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
	)

	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_worker_ticks_skipped_total",
			Help: "Poller ticks skipped because a batch was still in flight",
		},
	)

	SchedulesFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_worker_schedules_fired_total",
			Help: "Scheduled reports materialized and enqueued",
		},
		[]string{"schedule_type"},
	)

	MailBatchesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_worker_mail_batches_total",
			Help: "Batch emails attempted, by outcome",
		},
		[]string{"outcome"},
	)
)
