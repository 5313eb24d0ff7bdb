// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry installs the global OpenTelemetry tracer provider. Spans
// for runs, stages and plugin hooks are created through otel.Tracer and are
// dropped by the default no-op provider unless tracing is enabled.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/noldarim/mcpsmith/internal/config"
	"github.com/noldarim/mcpsmith/internal/logger"
)

// ShutdownFunc flushes pending spans
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup exports spans over OTLP/HTTP when tracing is enabled. The returned
// function must be called before exit; it is a no-op when tracing is off.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := NewProvider(sdktrace.WithBatcher(exporter), Resource(cfg.ServiceName, version))
	otel.SetTracerProvider(provider)

	l := logger.GetCLILogger()
	l.Debug().Str("endpoint", cfg.Endpoint).Msg("Tracing enabled")

	return provider.Shutdown, nil
}

// Resource describes this process to the trace backend
func Resource(serviceName, version string) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
}

// NewProvider creates a tracer provider that samples every span
func NewProvider(exporter sdktrace.TracerProviderOption, res *resource.Resource) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		exporter,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
}
