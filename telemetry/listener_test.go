package telemetry_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracer(t *testing.T) (*tracetest.SpanRecorder, *telemetry.Listener) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	tracer := telemetry.Tracer(tp)
	return sr, telemetry.NewListener(tracer)
}

func TestListener_CallStartStop_ProducesOneSpan(t *testing.T) {
	sr, l := newTestTracer(t)

	l.OnEvent(&events.Event{Type: events.EventCallStart, AgentID: "A1", TaskID: "rpc-1"})
	l.OnEvent(&events.Event{Type: events.EventCallStop, AgentID: "A1", TaskID: "rpc-1"})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "agentgw.dispatch", spans[0].Name())
}

func TestListener_CallError_RecordsError(t *testing.T) {
	sr, l := newTestTracer(t)

	l.OnEvent(&events.Event{Type: events.EventCallStart, AgentID: "A2", TaskID: "rpc-2"})
	l.OnEvent(&events.Event{
		Type: events.EventCallError, AgentID: "A2", TaskID: "rpc-2",
		Data: &events.CallErrorData{Error: context.DeadlineExceeded},
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
}

func TestListener_PointEventWithoutInflight_CreatesStandaloneSpan(t *testing.T) {
	sr, l := newTestTracer(t)

	l.OnEvent(&events.Event{Type: events.EventBreakerOpen, AgentID: "A3"})

	spans := sr.Ended()
	require.Len(t, spans, 1)
}
