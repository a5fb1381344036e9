// Package telemetry wires OpenTelemetry tracing (optionally exported to Google
// Cloud Trace) and bridges OTel metrics onto the Prometheus registry served by
// internal/metrics.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config controls the tracer and meter providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// GCPProjectID enables the Cloud Trace exporter when set.
	GCPProjectID string
	// SampleRatio is the fraction of traces sampled; 0 or >=1 samples everything.
	SampleRatio float64
}

// Providers holds the initialized SDK providers.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *metric.MeterProvider
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

var (
	initOnce  sync.Once
	providers *Providers
	initErr   error
)

// InitTracerProvider sets the global tracer provider, meter provider, and propagator.
// Only the first call configures anything; later calls return the same providers.
func InitTracerProvider(ctx context.Context, cfg Config) (*Providers, error) {
	initOnce.Do(func() {
		providers, initErr = build(ctx, cfg)
	})
	return providers, initErr
}

func build(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pagewatch"
	}
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	}
	if cfg.GCPProjectID != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.CloudProviderGCP, semconv.CloudAccountID(cfg.GCPProjectID)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if cfg.GCPProjectID != "" {
		exporter, err := texporter.New(texporter.WithProjectID(cfg.GCPProjectID))
		if err != nil {
			return nil, fmt.Errorf("failed to create google trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)

	// OTel instruments land on the same registry as the promauto collectors.
	promExporter, err := otelprom.New(otelprom.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(promExporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)
	return &Providers{Tracer: tp, Meter: mp}, nil
}
