// Package metrics exposes the gateway's Prometheus vectors and the
// event-bus listener that feeds them. Adapted from
// runtime/metrics/prometheus, which defines PromptKit's own
// pipeline/provider/tool-call vectors in the same namespace + Vec
// construction style; here the nouns are per-agent in-flight/breaker-state
// gauges, push-delivery counters, and SSE-subscriber gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "agentgw"

var (
	// InFlight is a gauge of the current in-flight call count per agent.
	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight",
			Help:      "Current number of in-flight calls per agent",
		},
		[]string{"agent_id"},
	)

	// BreakerState is a gauge of 0=closed, 1=half_open, 2=open per agent.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per agent (0=closed, 1=half_open, 2=open)",
		},
		[]string{"agent_id"},
	)

	// AdmissionRejectsTotal counts admission-layer rejections.
	AdmissionRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejects_total",
			Help:      "Total admission-layer rejections by reason",
		},
		[]string{"agent_id", "reason"}, // reason: circuit_open, too_many_requests
	)

	// CallDuration is a histogram of dispatched-call duration in seconds.
	CallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of dispatched calls to upstream agents in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"agent_id", "status"}, // status: success, error
	)

	// SSESubscribers is a gauge of currently connected SSE subscribers.
	SSESubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_subscribers",
			Help:      "Number of currently connected tasks.subscribe SSE clients",
		},
	)

	// PushTotal counts webhook delivery outcomes.
	PushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_total",
			Help:      "Total webhook delivery outcomes",
		},
		[]string{"outcome"}, // outcome: success, client_error, max_attempts
	)

	allMetrics = []prometheus.Collector{
		InFlight,
		BreakerState,
		AdmissionRejectsTotal,
		CallDuration,
		SSESubscribers,
		PushTotal,
	}
)

// BreakerStateValue maps a breaker state name to its gauge value.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
