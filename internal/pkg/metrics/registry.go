package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillacademy_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "skillacademy_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "skillacademy_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillacademy_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// SecondMe provider metrics
var (
	// ProviderRequests tracks outbound calls to the SecondMe API
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillacademy_provider_requests_total",
			Help: "Total SecondMe API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ProviderDuration tracks outbound call latency
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "skillacademy_provider_request_duration_ms",
			Help:                            "SecondMe API request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"operation"},
	)
)

// Auth flow metrics
var (
	// Logins tracks completed login attempts by outcome
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillacademy_logins_total",
			Help: "Total OAuth login callbacks by outcome",
		},
		[]string{"outcome"},
	)

	// TokenRefreshes tracks implicit token refreshes on the read path
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillacademy_token_refreshes_total",
			Help: "Total access token refreshes by status",
		},
		[]string{"status"},
	)
)
