// internal/infra/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewal_ticks_total",
		Help: "Completed renewal scheduler ticks.",
	})

	TicksSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewal_ticks_skipped_total",
		Help: "Ticks skipped because a previous tick was still running.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "renewal_tick_duration_seconds",
		Help:    "Wall time of one full scheduler tick across all lanes.",
		Buckets: prometheus.DefBuckets,
	})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_stage_failures_total",
		Help: "Stage-level failures absorbed by the tick loop.",
	}, []string{"lane", "stage"})

	StatusesRefreshed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_statuses_refreshed_total",
		Help: "Records whose renewal_status changed during a refresh pass.",
	}, []string{"lane"})

	AutoEnrollmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_auto_enrollments_total",
		Help: "Renewal-cycle records created for expired completions.",
	}, []string{"lane"})

	RemindersSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_reminders_sent_total",
		Help: "Expiry reminder notifications written to the log.",
	}, []string{"lane"})

	RecordsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "renewal_records",
		Help: "Recurring completion records by renewal status, sampled after each tick.",
	}, []string{"lane", "status"})
)
