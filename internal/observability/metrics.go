// README: Prometheus collectors shared by the ride core and the HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bidride"

// Accept outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	RidesCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Rides created in searching status"})
	AcceptAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "accept_attempts_total", Help: "Ride acceptance attempts by outcome"},
		[]string{"outcome"},
	)
	LocationDecodeSkips = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "location_decode_skips_total", Help: "Rides skipped because the pickup location could not be decoded"})
	NearbyQueryLatency  = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nearby_query_seconds",
			Help:      "Latency of nearby ride queries by candidate source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "realtime_sessions", Help: "Open realtime sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
