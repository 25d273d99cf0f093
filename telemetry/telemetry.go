// Package telemetry sets up the OpenTelemetry SDK.
package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "finch"

type options struct {
	metricReaders   []sdkmetric.Reader
	metricExporters []sdkmetric.Exporter
	traceExporters  []sdktrace.SpanExporter
}

// Option configures the OpenTelemetry SDK.
type Option func(*options)

// WithMetricReader adds a pull based metric reader (e.g. Prometheus).
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) {
		o.metricReaders = append(o.metricReaders, r)
	}
}

// WithMetricExporter adds a push based metric exporter.
func WithMetricExporter(e sdkmetric.Exporter) Option {
	return func(o *options) {
		o.metricExporters = append(o.metricExporters, e)
	}
}

// WithTraceExporter adds a span exporter.
func WithTraceExporter(e sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.traceExporters = append(o.traceExporters, e)
	}
}

// SetupOTELSDK bootstraps the OpenTelemetry pipeline.
//
// If it does not return an error, make sure to call shutdown for proper cleanup.
func SetupOTELSDK(
	ctx context.Context,
	opts ...Option,
) (shutdown func(context.Context) error, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return shutdown, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, e := range o.traceExporters {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(e))
	}
	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range o.metricReaders {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	for _, e := range o.metricExporters {
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(e)))
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	log.Debug().
		Int("traceExporters", len(o.traceExporters)).
		Int("metricReaders", len(o.metricReaders)+len(o.metricExporters)).
		Msg("telemetry initialized")

	return shutdown, nil
}
