package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the control plane exports:
// workflow/activity lifecycle counters, quota compliance events, and
// BFF cache hit/miss rates.
type Metrics struct {
	WorkflowsStarted  *prometheus.CounterVec
	WorkflowDuration  *prometheus.HistogramVec
	WorkflowsInFlight *prometheus.GaugeVec

	ActivitiesExecuted *prometheus.CounterVec
	ActivityDuration   *prometheus.HistogramVec
	ActivityRetries    *prometheus.CounterVec

	QuotaComplianceEvents *prometheus.CounterVec
	RateLimitLockouts     *prometheus.CounterVec

	BFFCacheHits   *prometheus.CounterVec
	BFFCacheMisses *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics constructs and registers every collector under namespace
// (e.g. "orchestrator").
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "orchestrator"
	}

	return &Metrics{
		WorkflowsStarted: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "workflows_started_total", Help: "Total workflows started"},
			[]string{"workflow_type", "tenant_id"},
		),
		WorkflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Name: "workflow_duration_seconds",
				Help:    "Workflow execution duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"workflow_type", "status"},
		),
		WorkflowsInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "workflows_in_flight", Help: "Workflows currently running"},
			[]string{"workflow_type"},
		),
		ActivitiesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "activities_executed_total", Help: "Total activity executions"},
			[]string{"activity_type", "status"},
		),
		ActivityDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Name: "activity_duration_seconds",
				Help:    "Activity execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"activity_type"},
		),
		ActivityRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "activity_retries_total", Help: "Total activity retry attempts"},
			[]string{"activity_type"},
		),
		QuotaComplianceEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "quota_compliance_events_total", Help: "Quota warning/error events"},
			[]string{"tenant_id", "resource_type", "severity"},
		),
		RateLimitLockouts: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_lockouts_total", Help: "Accounts locked out by the credential rate limiter"},
			[]string{"tenant_id"},
		),
		BFFCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "bff_cache_hits_total", Help: "BFF aggregate cache hits"},
			[]string{"route_kind"},
		),
		BFFCacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "bff_cache_misses_total", Help: "BFF aggregate cache misses"},
			[]string{"route_kind"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "circuit_breaker_state", Help: "0=closed 0.5=half-open 1=open"},
			[]string{"name"},
		),
	}
}

// RecordWorkflowStart increments the started counter and in-flight gauge.
func (m *Metrics) RecordWorkflowStart(workflowType, tenantID string) {
	m.WorkflowsStarted.WithLabelValues(workflowType, tenantID).Inc()
	m.WorkflowsInFlight.WithLabelValues(workflowType).Inc()
}

// RecordWorkflowEnd records terminal duration/status and decrements in-flight.
func (m *Metrics) RecordWorkflowEnd(workflowType, status string, d time.Duration) {
	m.WorkflowDuration.WithLabelValues(workflowType, status).Observe(d.Seconds())
	m.WorkflowsInFlight.WithLabelValues(workflowType).Dec()
}

// RecordActivity records one activity execution outcome and duration.
func (m *Metrics) RecordActivity(activityType, status string, d time.Duration, attempt int32) {
	m.ActivitiesExecuted.WithLabelValues(activityType, status).Inc()
	m.ActivityDuration.WithLabelValues(activityType).Observe(d.Seconds())
	if attempt > 1 {
		m.ActivityRetries.WithLabelValues(activityType).Inc()
	}
}

// RecordQuotaCompliance has the same shape as internal/quota.ComplianceLogger,
// so it can be assigned directly to quota.NewEnforcer without this
// package importing internal/quota.
func (m *Metrics) RecordQuotaCompliance(ctx context.Context, severity, tenantID, resourceType string, current, limit int64) {
	m.QuotaComplianceEvents.WithLabelValues(tenantID, resourceType, severity).Inc()
}

// RecordCacheResult implements a hit/miss recorder for internal/bff.
func (m *Metrics) RecordCacheResult(routeKind string, hit bool) {
	if hit {
		m.BFFCacheHits.WithLabelValues(routeKind).Inc()
		return
	}
	m.BFFCacheMisses.WithLabelValues(routeKind).Inc()
}
