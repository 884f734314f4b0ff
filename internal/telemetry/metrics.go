package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests — количество HTTP-запросов по маршруту и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_http_requests_total",
		Help: "Total HTTP requests handled by wikiops",
	}, []string{"method", "status"})

	// JobRuns — завершённые run'ы по задаче, статусу и источнику запуска.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_job_runs_total",
		Help: "Job runs by terminal status",
	}, []string{"job", "status", "trigger"})

	// JobDuration — длительность run'ов.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wikiops_job_duration_seconds",
		Help:    "Job run duration",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job"})

	// JobLockContention — попытки запуска, упёршиеся в занятую блокировку.
	JobLockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_job_lock_contention_total",
		Help: "Run attempts rejected because the job lock was held",
	}, []string{"job", "trigger"})

	// JobsRunning — run'ы, выполняющиеся в этом процессе.
	JobsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wikiops_jobs_running",
		Help: "Job runs in flight in this instance",
	}, []string{"job"})

	// Leader — 1, если экземпляр считает себя лидером.
	Leader = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikiops_scheduler_leader",
		Help: "1 if this instance holds the scheduler leadership lease",
	})

	// LeaderTransitions — смены локального статуса лидерства.
	LeaderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_scheduler_leader_transitions_total",
		Help: "Leadership state changes observed by this instance",
	}, []string{"to"})

	// WebhookDeliveries — входящие webhook-доставки по событию и результату.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_webhook_deliveries_total",
		Help: "Inbound webhook deliveries by event type and outcome",
	}, []string{"event", "outcome"})

	// WebhookDispatch — результаты асинхронной обработки событий.
	WebhookDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikiops_webhook_dispatch_total",
		Help: "Background webhook handler results",
	}, []string{"event", "result"})

	// WebhookQueueDepth — события, ожидающие обработки.
	WebhookQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikiops_webhook_queue_depth",
		Help: "Webhook events waiting for a background worker",
	})
)

// SetLeader обновляет метрики лидерства.
func SetLeader(leader bool) {
	if leader {
		Leader.Set(1)
		LeaderTransitions.WithLabelValues("leader").Inc()
		return
	}
	Leader.Set(0)
	LeaderTransitions.WithLabelValues("follower").Inc()
}
