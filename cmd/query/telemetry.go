package query

import (
	"context"
	"os"

	"github.com/Darkness4/finch/telemetry"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// setupTraces prints the spans and metrics of the command to stderr.
func setupTraces(ctx context.Context) (func(context.Context) error, error) {
	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	return telemetry.SetupOTELSDK(ctx,
		telemetry.WithTraceExporter(traceExporter),
		telemetry.WithMetricExporter(metricExporter),
	)
}
