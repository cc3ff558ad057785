// Package telemetry provides the gateway's OpenTelemetry integration: tracer
// provider construction, W3C trace-context propagation across the inbound
// JSON-RPC / outbound agent-call boundary, and an event-bus listener that
// converts gateway events (breaker transitions, dispatch outcomes, stream
// lifecycle, webhook deliveries) into spans. Adapted from
// runtime/telemetry, which does the same for PromptKit's own pipeline
// events.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// InstrumentationName is the OTel instrumentation scope name.
	InstrumentationName = "github.com/AltairaLabs/agentgw"

	// InstrumentationVersion is the OTel instrumentation scope version.
	InstrumentationVersion = "1.0.0"
)

// Tracer returns a named tracer from the given TracerProvider. If tp is nil
// the global provider is used (a noop provider until one is configured).
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

// NewTracerProvider creates a TracerProvider that exports spans via
// OTLP/HTTP. The caller is responsible for calling Shutdown on the returned
// provider.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// SetupPropagation configures the global OTel text-map propagator to handle
// W3C TraceContext and W3C Baggage. Unlike the teacher's SetupPropagation,
// no AWS X-Ray propagator is registered here -- this gateway exercises no
// AWS SDK anywhere else, so carrying the X-Ray propagator alone would have
// nothing else in the build to serve it (see DESIGN.md).
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
