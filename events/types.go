package events

import "time"

// EventType identifies the type of event emitted by the gateway.
type EventType string

const (
	// Circuit breaker transitions (spec §4.G).
	EventBreakerOpen     EventType = "breaker.open"
	EventBreakerHalfOpen EventType = "breaker.half_open"
	EventBreakerClosed   EventType = "breaker.closed"
	EventBreakerReject   EventType = "breaker.reject"

	// Admission control.
	EventBackpressureReject EventType = "admission.backpressure_reject"

	// Dispatch to an upstream agent.
	EventCallStart EventType = "call.start"
	EventCallStop  EventType = "call.stop"
	EventCallError EventType = "call.error"

	// SSE ingress/egress lifecycle.
	EventStreamInit  EventType = "stream.init"
	EventStreamError EventType = "stream.error"

	// Webhook delivery.
	EventPushStart   EventType = "push.start"
	EventPushSuccess EventType = "push.success"
	EventPushFailure EventType = "push.failure"

	// Worker supervisor lifecycle.
	EventWorkerSpawn     EventType = "worker.spawn"
	EventWorkerTerminate EventType = "worker.terminate"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a gateway event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	AgentID   string
	TaskID    string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// BreakerStateData describes a circuit breaker state transition.
type BreakerStateData struct {
	baseEventData
	FailureCount int
	Threshold    int
	CooldownFor  time.Duration
}

// BreakerRejectData describes a call rejected because the breaker is open.
type BreakerRejectData struct {
	baseEventData
	RemainingCooldown time.Duration
}

// BackpressureRejectData describes a call rejected by the admission cap.
type BackpressureRejectData struct {
	baseEventData
	InFlight int
	Cap      int
}

// CallStartData describes the start of a dispatch to an upstream agent.
type CallStartData struct {
	baseEventData
	Method string
}

// CallStopData describes the successful completion of a dispatch.
type CallStopData struct {
	baseEventData
	Method   string
	Duration time.Duration
}

// CallErrorData describes a failed dispatch.
type CallErrorData struct {
	baseEventData
	Method   string
	Duration time.Duration
	Error    error
}

// StreamInitData describes the first frame observed on an SSE ingress.
type StreamInitData struct {
	baseEventData
	TimeToFirstFrame time.Duration
}

// StreamErrorData describes an SSE ingress failure.
type StreamErrorData struct {
	baseEventData
	Error error
}

// PushAttemptData describes a single webhook delivery attempt.
type PushAttemptData struct {
	baseEventData
	URL        string
	Attempt    int
	StatusCode int
	Error      error
}

// WorkerLifecycleData describes a worker supervisor spawn or terminate decision.
type WorkerLifecycleData struct {
	baseEventData
	NodeIndex int
	NodeCount int
}
