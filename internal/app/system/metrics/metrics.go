// Package metrics defines the Prometheus metrics exported at /metrics.
//
//	groupsync_crm_requests_total{entity,action,result}
//	groupsync_crm_request_duration_seconds{entity,action}
//	groupsync_crm_breaker_state{name}              0=closed 1=half-open 2=open
//	groupsync_sync_operations_total{direction,kind,result}
//	groupsync_reconcile_items_total{pass,result}
//	groupsync_reconcile_last_step_timestamp{pass}
//	groupsync_webhook_deliveries_total{result}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CRMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsync_crm_requests_total",
			Help: "CRM API calls by entity, action and result",
		},
		[]string{"entity", "action", "result"},
	)

	CRMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupsync_crm_request_duration_seconds",
			Help:    "CRM API call latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"entity", "action"},
	)

	CRMBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "groupsync_crm_breaker_state",
			Help: "CRM circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsync_sync_operations_total",
			Help: "Sync operations by direction (a2b, b2a), kind and result",
		},
		[]string{"direction", "kind", "result"},
	)

	ReconcileItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsync_reconcile_items_total",
			Help: "Items visited by reconciliation passes",
		},
		[]string{"pass", "result"},
	)

	ReconcileLastStep = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "groupsync_reconcile_last_step_timestamp",
			Help: "Unix time of the last completed reconciliation step per pass",
		},
		[]string{"pass"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsync_webhook_deliveries_total",
			Help: "CRM webhook deliveries by result (accepted, echo, rejected, failed)",
		},
		[]string{"result"},
	)
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
	ResultChanged = "changed"
)

// SyncResult returns ResultOK or ResultError for err.
func SyncResult(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
