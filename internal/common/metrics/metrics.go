// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	RulesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_evaluated_total",
			Help: "Total number of rules evaluated per event type",
		},
		[]string{"event_type"},
	)

	RulesFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rules_fired_total",
			Help: "Total number of rules whose gates and conditions passed",
		},
		[]string{"event_type"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications constructed by the engine",
		},
		[]string{"channel"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications delivered successfully",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notification delivery failures",
		},
		[]string{"channel", "permanent"},
	)

	NotificationRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total number of notifications requeued for retry",
		},
		[]string{"channel"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_delivery_duration_seconds",
			Help: "Duration of a single delivery attempt in seconds",
		},
		[]string{"channel"},
	)

	RuleCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_cache_hits_total",
			Help: "Rule lookups served from the Redis cache",
		},
	)

	RuleCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_cache_misses_total",
			Help: "Rule lookups that fell through to Postgres",
		},
	)
)
