// Package httputil provides shared HTTP client construction utilities for
// the gateway. It centralizes timeout defaults so every component that
// makes an outbound call — worker dispatch, SSE ingress, webhook delivery,
// registry card refresh — uses consistent, named configuration instead of
// an ad hoc client per call site.
package httputil

import (
	"net/http"
	"time"
)

// Standard timeout defaults used across the gateway. These back the
// configuration keys in the gateway's Option surface; the constants here
// are the factory defaults, not a ceiling.
const (
	// DefaultCallTimeout is the per-call deadline for a worker's synchronous
	// dispatch to an upstream agent (spec: agent.callTimeout).
	DefaultCallTimeout = 15 * time.Second

	// DefaultStreamInitTimeout bounds how long SSE ingress waits for the
	// first frame of a streaming call before giving up.
	DefaultStreamInitTimeout = 15 * time.Second

	// DefaultWebhookTimeout is the HTTP timeout for a single webhook
	// delivery attempt.
	DefaultWebhookTimeout = 10 * time.Second

	// DefaultCardTimeout is the HTTP timeout for agent-card discovery and
	// refresh requests.
	DefaultCardTimeout = 10 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewHTTPClientWithTransport returns an *http.Client with the given timeout
// and a caller-supplied RoundTripper (e.g. an otelhttp-wrapped transport, or
// one gated by a connection-pool semaphore).
func NewHTTPClientWithTransport(timeout time.Duration, rt http.RoundTripper) *http.Client {
	return &http.Client{Timeout: timeout, Transport: rt}
}
