// Package metrics holds the Prometheus collectors for the user plugin.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peek_user"

// Login / logout metrics
var (
	// LoginsTotal counts login actions by result (succeeded, failed, error)
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login actions processed by result",
		},
		[]string{"result"},
	)

	// LogoutsTotal counts logout actions by result (succeeded, failed, error)
	LogoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Logout actions processed by result",
		},
		[]string{"result"},
	)

	// ForcedLogoutsTotal counts sessions ended because another device or an admin took over
	ForcedLogoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Login records removed by takeover or administrative logout",
		},
		[]string{"reason"},
	)

	// ActionDuration tracks action processing latency in seconds
	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Action processing duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"action"},
	)
)

// Observable metrics
var (
	// ObserveSubscriptions tracks live selector subscriptions across all connections
	ObserveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observe_subscriptions_current",
			Help:      "Live tuple selector subscriptions",
		},
	)

	// NotificationsPublished counts tuple update notifications by tuple type
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Tuple update notifications published by tuple type",
		},
		[]string{"tuple_type"},
	)

	// WebSocketConnections tracks connected observe clients
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_current",
			Help:      "Connected observe websocket clients",
		},
	)
)

// HTTP metrics
var (
	// RateLimitedRequests counts requests rejected by the per client rate limiter
	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	// CircuitBreakerState tracks the client breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Result label values
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultError     = "error"
)

// ResultLabel maps an outcome onto a result label.
func ResultLabel(succeeded bool, err error) string {
	switch {
	case err != nil:
		return ResultError
	case succeeded:
		return ResultSucceeded
	default:
		return ResultFailed
	}
}
