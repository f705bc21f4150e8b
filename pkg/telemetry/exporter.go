// ABOUTME: Exporter factory for metric and trace destinations (stdout, OTLP)
// ABOUTME: Falls back to stdout when no configured exporter supports a signal

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// createMetricExporters creates metric exporters based on configuration.
func createMetricExporters(cfg Config) ([]metric.Exporter, error) {
	var exporters []metric.Exporter

	for _, name := range cfg.Exporters {
		if name != ExporterStdout {
			// otlp carries traces only
			continue
		}
		exporter, err := createStdoutMetricExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	if len(exporters) == 0 {
		exporter, err := createStdoutMetricExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create default stdout metric exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

// createTraceExporters creates trace exporters based on configuration.
func createTraceExporters(ctx context.Context, cfg Config) ([]trace.SpanExporter, error) {
	var exporters []trace.SpanExporter

	for _, name := range cfg.Exporters {
		switch name {
		case ExporterOTLP:
			exporter, err := createOTLPTraceExporter(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)

		case ExporterStdout:
			exporter, err := createStdoutTraceExporter(cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
			}
			exporters = append(exporters, exporter)
		}
	}

	if len(exporters) == 0 {
		exporter, err := createStdoutTraceExporter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create default stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}

func createStdoutMetricExporter(cfg Config) (metric.Exporter, error) {
	opts := []stdoutmetric.Option{stdoutmetric.WithPrettyPrint()}
	if cfg.Output != nil {
		opts = append(opts, stdoutmetric.WithWriter(cfg.Output))
	}
	return stdoutmetric.New(opts...)
}

// createOTLPTraceExporter dials lazily; an unreachable collector only
// surfaces as export errors.
func createOTLPTraceExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	return otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	)
}

func createStdoutTraceExporter(cfg Config) (trace.SpanExporter, error) {
	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if cfg.Output != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Output))
	}
	return stdouttrace.New(opts...)
}
