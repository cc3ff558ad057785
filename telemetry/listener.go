package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/agentgw/events"
)

// callKey identifies one in-flight dispatched call's span, scoped to the
// agent plus an rpc-correlation id so concurrent calls to the same agent
// don't collide.
type callKey struct {
	agentID string
	rpcID   string
}

// Listener converts gateway events into OTel spans in real time: one span
// per dispatched call (call_start → call_stop/call_error), and point events
// (breaker transitions, admission rejects, stream lifecycle, webhook
// attempts) recorded as span events on the enclosing call span when one is
// in flight, or as standalone spans otherwise. It is grounded on
// runtime/telemetry.OTelEventListener's session/inflight span-map shape,
// narrowed from PromptKit's session/pipeline/stage hierarchy to this
// gateway's single-level "one span per dispatched call" model.
type Listener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	inflight map[callKey]spanEntry
}

type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to end the span with its own context
}

// NewListener creates a Listener that records spans via tracer.
func NewListener(tracer trace.Tracer) *Listener {
	return &Listener{
		tracer:   tracer,
		inflight: make(map[callKey]spanEntry),
	}
}

// keyFor builds the call-span key for an event from its agent id and task
// id.
func keyFor(evt *events.Event) callKey {
	return callKey{agentID: evt.AgentID, rpcID: evt.TaskID}
}

// OnEvent handles one gateway event. Register via EventBus.SubscribeAll.
func (l *Listener) OnEvent(evt *events.Event) {
	switch evt.Type {
	case events.EventCallStart:
		l.startCall(evt)
	case events.EventCallStop:
		l.endCall(evt, true, nil)
	case events.EventCallError:
		l.endCall(evt, false, dataError(evt))
	case events.EventBreakerOpen, events.EventBreakerHalfOpen, events.EventBreakerClosed, events.EventBreakerReject:
		l.recordPoint(evt, "breaker."+string(evt.Type))
	case events.EventBackpressureReject:
		l.recordPoint(evt, "admission.backpressure_reject")
	case events.EventStreamInit:
		l.recordPoint(evt, "stream.init")
	case events.EventStreamError:
		l.recordPoint(evt, "stream.error")
	case events.EventPushStart, events.EventPushSuccess, events.EventPushFailure:
		l.recordPoint(evt, string(evt.Type))
	}
}

func (l *Listener) startCall(evt *events.Event) {
	ctx, span := l.tracer.Start(context.Background(), "agentgw.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.id", evt.AgentID),
			attribute.String("task.id", evt.TaskID),
		),
	)
	l.mu.Lock()
	l.inflight[keyFor(evt)] = spanEntry{span: span, ctx: ctx}
	l.mu.Unlock()
}

func (l *Listener) endCall(evt *events.Event, success bool, err error) {
	k := keyFor(evt)
	l.mu.Lock()
	entry, ok := l.inflight[k]
	if ok {
		delete(l.inflight, k)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if success {
		entry.span.SetStatus(codes.Ok, "")
	} else {
		entry.span.SetStatus(codes.Error, errMsg(err))
		if err != nil {
			entry.span.RecordError(err)
		}
	}
	entry.span.End()
}

func (l *Listener) recordPoint(evt *events.Event, name string) {
	k := keyFor(evt)
	l.mu.Lock()
	entry, ok := l.inflight[k]
	l.mu.Unlock()
	if ok {
		entry.span.AddEvent(name, trace.WithAttributes(
			attribute.String("agent.id", evt.AgentID),
		))
		return
	}

	_, span := l.tracer.Start(context.Background(), name,
		trace.WithAttributes(attribute.String("agent.id", evt.AgentID)),
	)
	span.End()
}

func dataError(evt *events.Event) error {
	if d, ok := evt.Data.(*events.CallErrorData); ok {
		return d.Error
	}
	return nil
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
