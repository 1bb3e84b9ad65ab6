// Package metrics provides Prometheus instrumentation for the CARTA relay.
// It exposes gauges for frontend connections and in-flight actions, counters
// for action outcomes, and a histogram of action round-trip latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Action results used as the "result" label of ActionsTotal.
const (
	ResultSuccess     = "success"      // frontend reported success
	ResultFailure     = "failure"      // frontend reported failure
	ResultInvalid     = "invalid"      // rejected before reaching the frontend
	ResultRateLimited = "rate_limited" // session over its action budget
	ResultTimeout     = "timeout"      // no reply within the action timeout
	ResultCanceled    = "canceled"     // caller gave up
	ResultUnavailable = "unavailable"  // frontend disconnected or node unreachable
	ResultNotFound    = "not_found"    // unknown session
)

var (
	// FrontendConnections tracks the current number of connected frontends.
	FrontendConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carta_frontend_connections",
		Help: "Current number of connected frontend sessions",
	})

	// ActionsTotal counts relayed actions by result.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carta_actions_total",
		Help: "Total number of actions handled by the relay",
	}, []string{"result"})

	// ActionLatency records the time from request to frontend reply.
	ActionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "carta_action_latency_seconds",
		Help:    "Action round-trip latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// PendingActions tracks actions waiting for a frontend reply.
	PendingActions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carta_pending_actions",
		Help: "Current number of actions waiting for a frontend reply",
	})

	// ForwardedActions counts actions sent to or received from other relay
	// nodes, labeled by direction: "out" or "in".
	ForwardedActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carta_forwarded_actions_total",
		Help: "Total number of actions forwarded between relay nodes",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(
		FrontendConnections,
		ActionsTotal,
		ActionLatency,
		PendingActions,
		ForwardedActions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
