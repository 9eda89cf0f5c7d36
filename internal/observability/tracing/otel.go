// Package tracing configures OpenTelemetry for the chat API, the events
// relay, and the refill scanner. Spans flow from the HTTP middleware through
// the orchestrator's collaborator calls and into Kafka record headers.
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds tracing configuration for one binary.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	// SampleRate below 1.0 applies ratio sampling to root spans; child
	// spans follow their parent's decision.
	SampleRate float64
}

// DefaultConfig returns the configuration used when no overrides are set.
// The environment label comes from APP_ENV so all three binaries report
// consistently.
func DefaultConfig(serviceName string) Config {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    env,
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
	}
}

// Provider owns the tracer provider lifecycle for one binary.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init wires the OTLP gRPC exporter and installs the global tracer provider
// and W3C propagators. Callers treat a failure here as non-fatal; the
// binaries run untraced rather than not at all.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceNamespace("rxchat"),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate < 1.0 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}
