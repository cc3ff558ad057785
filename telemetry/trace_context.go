package telemetry

import (
	"context"
	"net/http"
	"regexp"
)

type traceContextKey struct{}

// traceparentRe validates the W3C Trace Context traceparent header format:
// version-trace_id-parent_id-trace_flags.
var traceparentRe = regexp.MustCompile(`^[0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2}$`)

// TraceContext holds distributed trace headers extracted from an inbound
// HTTP request, carried across the gateway's JSON-RPC → outbound-agent-call
// boundary (spec's DOMAIN STACK wiring: "propagate traceparent from the
// inbound JSON-RPC request to the outbound agent call").
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// IsEmpty reports whether no trace data is present.
func (tc TraceContext) IsEmpty() bool {
	return tc.Traceparent == "" && tc.Tracestate == ""
}

// ExtractTraceContext reads trace headers from an inbound HTTP request.
// Invalid traceparent values are silently discarded.
func ExtractTraceContext(r *http.Request) TraceContext {
	tc := TraceContext{Tracestate: r.Header.Get("tracestate")}
	if tp := r.Header.Get("traceparent"); traceparentRe.MatchString(tp) {
		tc.Traceparent = tp
	}
	return tc
}

// ContextWithTrace stores a TraceContext in a Go context.
func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// TraceContextFromContext retrieves a TraceContext from a Go context,
// returning an empty TraceContext if none is stored.
func TraceContextFromContext(ctx context.Context) TraceContext {
	tc, _ := ctx.Value(traceContextKey{}).(TraceContext)
	return tc
}

// TraceMiddleware extracts distributed trace headers from inbound requests
// and stores them in the request context for downstream propagation to the
// worker's outbound dispatch.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := ExtractTraceContext(r)
		if !tc.IsEmpty() {
			r = r.WithContext(ContextWithTrace(r.Context(), tc))
		}
		next.ServeHTTP(w, r)
	})
}

// InjectTraceHeaders writes trace headers from ctx onto an outbound HTTP
// request bound for an upstream agent. No-op if ctx carries no trace data.
func InjectTraceHeaders(ctx context.Context, req *http.Request) {
	tc := TraceContextFromContext(ctx)
	if tc.IsEmpty() {
		return
	}
	if tc.Traceparent != "" {
		req.Header.Set("traceparent", tc.Traceparent)
	}
	if tc.Tracestate != "" {
		req.Header.Set("tracestate", tc.Tracestate)
	}
}
