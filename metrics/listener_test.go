package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/metrics"
	"github.com/stretchr/testify/assert"
)

func TestListener_BreakerOpen_SetsGaugeToOpen(t *testing.T) {
	l := metrics.NewListener()
	l.OnEvent(&events.Event{Type: events.EventBreakerOpen, AgentID: "gauge-test-open"})

	v := testutil.ToFloat64(metrics.BreakerState.WithLabelValues("gauge-test-open"))
	assert.Equal(t, metrics.BreakerStateValue("open"), v)
}

func TestListener_BreakerClosed_SetsGaugeToClosed(t *testing.T) {
	l := metrics.NewListener()
	l.OnEvent(&events.Event{Type: events.EventBreakerHalfOpen, AgentID: "gauge-test-closed"})
	l.OnEvent(&events.Event{Type: events.EventBreakerClosed, AgentID: "gauge-test-closed"})

	v := testutil.ToFloat64(metrics.BreakerState.WithLabelValues("gauge-test-closed"))
	assert.Equal(t, metrics.BreakerStateValue("closed"), v)
}

func TestListener_CallStop_ObservesDuration(t *testing.T) {
	l := metrics.NewListener()
	l.OnEvent(&events.Event{
		Type: events.EventCallStop, AgentID: "A2",
		Data: &events.CallStopData{Duration: 50 * time.Millisecond},
	})
	// Recording without panicking is sufficient coverage; extracting a
	// histogram bucket value requires a full DTO round trip not worth the
	// indirection here.
}

func TestListener_AdmissionRejectCounters(t *testing.T) {
	l := metrics.NewListener()
	l.OnEvent(&events.Event{Type: events.EventBreakerReject, AgentID: "gauge-test-reject"})
	l.OnEvent(&events.Event{Type: events.EventBackpressureReject, AgentID: "gauge-test-reject"})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AdmissionRejectsTotal.WithLabelValues("gauge-test-reject", "circuit_open")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AdmissionRejectsTotal.WithLabelValues("gauge-test-reject", "too_many_requests")))
}

func TestListener_PushOutcomes(t *testing.T) {
	l := metrics.NewListener()
	l.OnEvent(&events.Event{Type: events.EventPushSuccess})
	l.OnEvent(&events.Event{Type: events.EventPushFailure, Data: &events.PushAttemptData{Error: errBoom}})

	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.PushTotal.WithLabelValues("success")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.PushTotal.WithLabelValues("max_attempts")), float64(1))
}

type errString string

func (e errString) Error() string { return string(e) }

const errBoom errString = "boom"
