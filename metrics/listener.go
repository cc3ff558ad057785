package metrics

import (
	"github.com/AltairaLabs/agentgw/events"
)

// Listener records gateway events as Prometheus observations. Register via
// EventBus.SubscribeAll. Grounded on runtime/metrics/prometheus's
// MetricsListener: a type-switch over event kinds, each case pulling its
// typed Data payload and calling the matching Record* vector update.
type Listener struct{}

// NewListener creates a Listener.
func NewListener() *Listener { return &Listener{} }

// OnEvent handles one gateway event, updating the matching vector.
func (l *Listener) OnEvent(evt *events.Event) {
	switch evt.Type {
	case events.EventBreakerOpen:
		BreakerState.WithLabelValues(evt.AgentID).Set(BreakerStateValue("open"))
	case events.EventBreakerHalfOpen:
		BreakerState.WithLabelValues(evt.AgentID).Set(BreakerStateValue("half_open"))
	case events.EventBreakerClosed:
		BreakerState.WithLabelValues(evt.AgentID).Set(BreakerStateValue("closed"))
	case events.EventBreakerReject:
		AdmissionRejectsTotal.WithLabelValues(evt.AgentID, "circuit_open").Inc()
	case events.EventBackpressureReject:
		AdmissionRejectsTotal.WithLabelValues(evt.AgentID, "too_many_requests").Inc()
	case events.EventCallStop:
		if d, ok := evt.Data.(*events.CallStopData); ok {
			CallDuration.WithLabelValues(evt.AgentID, "success").Observe(d.Duration.Seconds())
		}
	case events.EventCallError:
		if d, ok := evt.Data.(*events.CallErrorData); ok {
			CallDuration.WithLabelValues(evt.AgentID, "error").Observe(d.Duration.Seconds())
		}
	case events.EventPushSuccess:
		PushTotal.WithLabelValues("success").Inc()
	case events.EventPushFailure:
		PushTotal.WithLabelValues(pushFailureReason(evt)).Inc()
	}
}

func pushFailureReason(evt *events.Event) string {
	if d, ok := evt.Data.(*events.PushAttemptData); ok && d.Error != nil {
		return "max_attempts"
	}
	return "client_error"
}

// SetInFlight updates the in-flight gauge for an agent. Called directly by
// the worker on admission/completion rather than through the event bus,
// since it's a level (not a count) and needs to be current at all times,
// not just when something happens to publish.
func SetInFlight(agentID string, n int) {
	InFlight.WithLabelValues(agentID).Set(float64(n))
}

// SetSSESubscribers updates the global SSE-subscriber gauge to an absolute
// level. Prefer IncSSESubscribers/DecSSESubscribers from call sites that
// track one connection at a time, since concurrent connections calling Set
// would stomp on each other's counts.
func SetSSESubscribers(n int) {
	SSESubscribers.Set(float64(n))
}

// IncSSESubscribers records one new SSE subscriber connecting.
func IncSSESubscribers() { SSESubscribers.Inc() }

// DecSSESubscribers records one SSE subscriber disconnecting.
func DecSSESubscribers() { SSESubscribers.Dec() }
