// Package observe wires OpenTelemetry tracing and metrics behind one small
// surface. When telemetry is disabled the same surface is served by no-op
// providers, so the pipeline never branches on whether anyone is listening.
package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tnoop "go.opentelemetry.io/otel/trace/noop"
)

// Config selects the OTLP HTTP collector.
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

// Telemetry owns the providers and the pipeline's instruments.
type Telemetry struct {
	tracer   trace.Tracer
	metrics  *Metrics
	shutdown []func(context.Context) error
}

// Noop returns telemetry that records nothing. Tests and disabled
// deployments share it.
func Noop() *Telemetry {
	metrics, err := newMetrics(mnoop.NewMeterProvider().Meter(instrumentationName))
	if err != nil {
		// The no-op meter cannot fail to build a counter.
		panic(err)
	}
	return &Telemetry{
		tracer:  tnoop.NewTracerProvider().Tracer(instrumentationName),
		metrics: metrics,
	}
}

// Setup builds the telemetry stack. Exporters are lazy; a collector that is
// down surfaces as export errors later, not as a startup failure.
func Setup(ctx context.Context, cfg Config, logger zerolog.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("observe: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	metrics, err := newMetrics(mp.Meter(instrumentationName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("service", cfg.ServiceName).Msg("telemetry enabled")
	return &Telemetry{
		tracer:   tp.Tracer(instrumentationName),
		metrics:  metrics,
		shutdown: []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// Start opens a span. Callers end it themselves.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Metrics returns the pipeline instruments.
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
