// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package telemetry records traces and metrics for diagnostic runs.

# Tracing

Each run produces one "deploydiag.run" span with a child span per step and a
grandchild span per command. Spans go to an OTLP collector over gRPC when an
endpoint is configured (--otlp-endpoint or OTEL_EXPORTER_OTLP_ENDPOINT), to a
JSON file when --trace-file is set, or nowhere (no-op tracer).

# Metrics

Metrics live in a private Prometheus registry and are written once at the
end of the run in the node_exporter textfile format (--metrics-file), which
suits short-lived CI jobs that cannot be scraped.
*/
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ServiceName identifies deploydiag in traces.
const ServiceName = "deploydiag"

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// TracerConfig configures NewTracer. A zero value yields a no-op tracer.
type TracerConfig struct {
	// ServiceName is the service identifier in traces.
	// Default: "deploydiag"
	ServiceName string

	// Endpoint is the OTLP/gRPC collector address, e.g. "localhost:4317".
	Endpoint string

	// Insecure disables TLS for the collector connection.
	Insecure bool

	// Writer receives spans as JSON, one object per span.
	Writer io.Writer
}

// TracerConfigFromEnv fills Endpoint from OTEL_EXPORTER_OTLP_ENDPOINT when
// the flag left it empty. OTEL_INSECURE=false enables TLS.
func TracerConfigFromEnv(cfg TracerConfig, getenv func(string) string) TracerConfig {
	if cfg.Endpoint == "" {
		cfg.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if cfg.Endpoint != "" && !cfg.Insecure {
		cfg.Insecure = getenv("OTEL_INSECURE") != "false"
	}
	return cfg
}

// -----------------------------------------------------------------------------
// Tracer
// -----------------------------------------------------------------------------

// Tracer wraps an OpenTelemetry tracer and its provider.
//
// # Thread Safety
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracer creates a tracer for the configured exporters.
//
// # Description
//
// With neither Endpoint nor Writer set, a no-op tracer is returned and no
// goroutines are started. Otherwise an SDK provider is built with every
// configured exporter: a batching OTLP/gRPC exporter and/or a synchronous
// JSON writer exporter.
//
// # Outputs
//
//   - *Tracer: ready to use; call Shutdown to flush
//   - error: exporter or resource construction failure
//
// # Examples
//
//	tracer, err := telemetry.NewTracer(ctx, telemetry.TracerConfig{Writer: f})
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
func NewTracer(ctx context.Context, cfg TracerConfig) (*Tracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceName
	}
	if cfg.Endpoint == "" && cfg.Writer == nil {
		return NewNoopTracer(), nil
	}

	var opts []sdktrace.TracerProviderOption

	if cfg.Endpoint != "" {
		conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(transportCredentials(cfg.Insecure)))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	if cfg.Writer != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace file exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}

	return newSDKTracer(cfg.ServiceName, opts...), nil
}

// transportCredentials returns plaintext credentials when insecure is set,
// otherwise TLS verified against the system roots.
func transportCredentials(insecureConn bool) credentials.TransportCredentials {
	if insecureConn {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(nil)
}

// newSDKTracer builds a provider from exporter options. Tests pass an
// in-memory exporter here.
func newSDKTracer(serviceName string, opts ...sdktrace.TracerProviderOption) *Tracer {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", environment()),
	)
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
	}, opts...)

	provider := sdktrace.NewTracerProvider(opts...)
	return &Tracer{
		tracer:   provider.Tracer(serviceName),
		provider: provider,
	}
}

// NewNoopTracer returns a tracer that records nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(ServiceName)}
}

// StartSpan starts a span. The returned function ends it, recording err as
// the span status when non-nil.
//
//	ctx, finish := tracer.StartSpan(ctx, "deploydiag.step", attribute.String("step", "listing"))
//	defer finish(nil)
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error, ...attribute.KeyValue)) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	finish := func(err error, endAttrs ...attribute.KeyValue) {
		span.SetAttributes(endAttrs...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	return ctx, finish
}

// TraceID returns the hex trace ID of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.TraceID().IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// Shutdown flushes and stops the exporters.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

func environment() string {
	if env := os.Getenv("DEPLOYDIAG_ENV"); env != "" {
		return env
	}
	if os.Getenv("CI") != "" {
		return "ci"
	}
	return "development"
}
