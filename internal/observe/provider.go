package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName is reported as service.name unless overridden.
const DefaultServiceName = "vocabox"

// ProviderConfig selects where vocabox telemetry goes.
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collector behind /metrics.
	// Defaults to prometheus.DefaultRegisterer, which promhttp.Handler
	// serves.
	Registerer prometheus.Registerer

	// SpanExporter receives synthesis, playback and materialization spans.
	// Without one, spans are sampled but dropped.
	SpanExporter sdktrace.SpanExporter
}

// InitProvider installs global meter and tracer providers for vocabox and
// returns a function that flushes and stops both. Metric instruments created
// by [DefaultMetrics] after this call are scraped at /metrics.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	reader, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func serviceResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	// No schema URL: resource.Default carries the SDK's own and Merge
	// rejects two different ones.
	opts := []resource.Option{resource.WithAttributes(semconv.ServiceName(name))}
	if cfg.ServiceVersion != "" {
		opts = append(opts, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	own, err := resource.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), own)
}
