package telemetry_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AltairaLabs/agentgw/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTraceContext_ValidTraceparent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.Header.Set("tracestate", "vendor=value")

	tc := telemetry.ExtractTraceContext(r)
	require.False(t, tc.IsEmpty())
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", tc.Traceparent)
	assert.Equal(t, "vendor=value", tc.Tracestate)
}

func TestExtractTraceContext_InvalidTraceparentDiscarded(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("traceparent", "not-a-valid-traceparent")

	tc := telemetry.ExtractTraceContext(r)
	assert.Empty(t, tc.Traceparent)
}

func TestInjectTraceHeaders_RoundTrip(t *testing.T) {
	inbound := httptest.NewRequest(http.MethodGet, "/", nil)
	inbound.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	tc := telemetry.ExtractTraceContext(inbound)
	ctx := telemetry.ContextWithTrace(inbound.Context(), tc)

	outbound := httptest.NewRequest(http.MethodPost, "http://upstream/agent", nil)
	telemetry.InjectTraceHeaders(ctx, outbound)

	assert.Equal(t, tc.Traceparent, outbound.Header.Get("traceparent"))
}

func TestInjectTraceHeaders_NoopWithoutTrace(t *testing.T) {
	outbound := httptest.NewRequest(http.MethodPost, "http://upstream/agent", nil)
	telemetry.InjectTraceHeaders(outbound.Context(), outbound)
	assert.Empty(t, outbound.Header.Get("traceparent"))
}
