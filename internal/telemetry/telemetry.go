// Package telemetry provides OpenTelemetry tracing for the shell.
//
// Metrics are served through the Prometheus endpoint; only traces flow
// through OTLP. Telemetry failures never crash the shell, they degrade to
// no-op tracers.
package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"github.com/fyrsmithlabs/mfeshell/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

// Provider owns the TracerProvider and its shutdown.
type Provider struct {
	cfg            config.ObservabilityConfig
	tracerProvider *trace.TracerProvider
	degraded       atomic.Bool
}

// New initializes tracing from config. When telemetry is disabled the
// returned provider is a no-op. Exporter construction errors degrade the
// provider instead of failing startup.
func New(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	p := &Provider{cfg: cfg}
	if !cfg.EnableTelemetry {
		return p, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, fmt.Errorf("otlp_endpoint is required when telemetry is enabled")
	}

	// Standalone resource to avoid schema URL conflicts with
	// resource.Default(), which uses a different semconv version.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(Version),
	)

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		p.degraded.Store(true)
		return p, nil
	}

	sampler := samplerFor(cfg.SampleRate)
	p.tracerProvider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func newExporter(ctx context.Context, cfg config.ObservabilityConfig) (trace.SpanExporter, error) {
	switch cfg.OTLPProtocol {
	case "http/protobuf":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(stripScheme(cfg.OTLPEndpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
		}
		return otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

func samplerFor(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}

// Tracer returns a tracer for the given instrumentation scope. No-op when
// telemetry is disabled or degraded.
func (p *Provider) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if p == nil || p.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return p.tracerProvider.Tracer(name, opts...)
}

// Degraded reports whether exporter setup failed.
func (p *Provider) Degraded() bool {
	return p != nil && p.degraded.Load()
}

// Shutdown flushes pending spans. Safe on a no-op provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracerProvider == nil {
		return nil
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	return nil
}

// stripScheme removes http:// or https:// from an endpoint URL. The OTLP
// HTTP exporter expects host:port, not a full URL.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
