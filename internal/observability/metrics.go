package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	adminRequestsTotal  *prometheus.CounterVec
	adminLatencySeconds *prometheus.HistogramVec
	adminErrorsTotal    *prometheus.CounterVec

	auditRecordsTotal        *prometheus.CounterVec
	auditRecordFailuresTotal *prometheus.CounterVec
	auditQueueDroppedTotal   prometheus.Counter
	auditQueueDepth          prometheus.Gauge
	auditRetentionDeleted    prometheus.Counter
	auditAnomaliesFlagged    *prometheus.GaugeVec
	auditStatisticsCache     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		adminRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_requests_total",
			Help: "Total number of admin API requests served.",
		}, []string{"method", "route", "status"})

		adminLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "admin_latency_seconds",
			Help:    "Latency distribution for admin API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		adminErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_errors_total",
			Help: "Total number of error responses returned by admin endpoints.",
		}, []string{"method", "route", "status"})

		auditRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Audit records persisted, by action and outcome status.",
		}, []string{"action", "status"})

		auditRecordFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_record_failures_total",
			Help: "Audit records that were swallowed, by failing stage.",
		}, []string{"stage"})

		auditQueueDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_queue_dropped_total",
			Help: "Asynchronous audit records dropped because the queue was full or closed.",
		})

		auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Asynchronous audit records waiting to be persisted.",
		})

		auditRetentionDeleted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_retention_deleted_total",
			Help: "Audit records permanently deleted by the retention sweep.",
		})

		auditAnomaliesFlagged = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_anomalies_flagged",
			Help: "Subjects flagged by the latest anomaly scan, by heuristic.",
		}, []string{"kind"})

		auditStatisticsCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_statistics_cache_total",
			Help: "Statistics cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			adminRequestsTotal, adminLatencySeconds, adminErrorsTotal,
			auditRecordsTotal, auditRecordFailuresTotal, auditQueueDroppedTotal, auditQueueDepth,
			auditRetentionDeleted, auditAnomaliesFlagged, auditStatisticsCache,
		)
	})
}

// AdminRequests exposes the counter for admin requests.
func AdminRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return adminRequestsTotal
}

// AdminLatency exposes the latency histogram for admin requests.
func AdminLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return adminLatencySeconds
}

// AdminErrors exposes the counter for admin error responses.
func AdminErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return adminErrorsTotal
}

// AuditRecords counts persisted audit records.
func AuditRecords() *prometheus.CounterVec {
	RegisterMetrics()
	return auditRecordsTotal
}

// AuditRecordFailures counts swallowed recorder failures.
func AuditRecordFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return auditRecordFailuresTotal
}

// AuditQueueDropped counts asynchronous records that never reached the store.
func AuditQueueDropped() prometheus.Counter {
	RegisterMetrics()
	return auditQueueDroppedTotal
}

// AuditQueueDepth tracks the asynchronous queue length.
func AuditQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return auditQueueDepth
}

// AuditRetentionDeleted counts records removed by retention sweeps.
func AuditRetentionDeleted() prometheus.Counter {
	RegisterMetrics()
	return auditRetentionDeleted
}

// AuditAnomaliesFlagged exposes the anomaly gauges.
func AuditAnomaliesFlagged() *prometheus.GaugeVec {
	RegisterMetrics()
	return auditAnomaliesFlagged
}

// AuditStatisticsCache counts statistics cache hits and misses.
func AuditStatisticsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return auditStatisticsCache
}
