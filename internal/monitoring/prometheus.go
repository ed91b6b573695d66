// Package monitoring provides Prometheus metrics for the authorization
// engine.
//
// Usage:
//
//	// Cache operations
//	monitoring.RecordCacheOperation("get", "hit")
//
//	// Engine operations
//	start := time.Now()
//	// ... evaluation ...
//	monitoring.RecordAPIOperation("check_permission", "authz.permission", time.Since(start), true)
//
//	// Directory store calls
//	monitoring.RecordDirectoryOperation("list_memberships", time.Since(start), true)
//
//	// Decisions
//	monitoring.RecordDecision("patients", "read", true)
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_engine_api_operations_total",
			Help: "Total number of engine API operations",
		},
		[]string{"operation", "resource", "status"},
	)

	apiOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_engine_api_operation_duration_seconds",
			Help:    "Duration of engine API operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "resource"},
	)

	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_engine_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"},
	)

	directoryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_engine_directory_operations_total",
			Help: "Total number of directory store operations",
		},
		[]string{"operation", "status"},
	)

	directoryOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authz_engine_directory_operation_duration_seconds",
			Help:    "Duration of directory store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_engine_decisions_total",
			Help: "Permission decisions by resource, operation and outcome",
		},
		[]string{"resource", "operation", "result"},
	)
)

// RecordAPIOperation records an engine API operation with its duration.
func RecordAPIOperation(operation, resource string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	apiOperationsTotal.WithLabelValues(operation, resource, status).Inc()
	apiOperationDuration.WithLabelValues(operation, resource).Observe(duration.Seconds())
}

// RecordCacheOperation records a cache operation result (hit/miss/success/error).
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordDirectoryOperation records a call to the external directory store.
func RecordDirectoryOperation(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	directoryOperationsTotal.WithLabelValues(operation, status).Inc()
	directoryOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordDecision records the outcome of a permission decision.
func RecordDecision(resource, operation string, allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	decisionsTotal.WithLabelValues(resource, operation, result).Inc()
}
