// Package tracing wires the OpenTelemetry SDK to an OTLP/gRPC collector.
// Spans cover the HTTP control plane (via otelgin in main); the WebSocket
// fabric is traced only at handshake time, long-lived sessions carry no span.
package tracing

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/scorecast/scorecast/internal/v1/config"
)

// InitTracer builds and globally installs a tracer provider exporting to
// cfg.OTelCollectorAddr. Sampling is parent-based on cfg.OTelSampleRatio, so
// a sampled upstream trace stays sampled regardless of the ratio. The caller
// owns shutdown of the returned provider.
func InitTracer(ctx context.Context, serviceName string, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.OTelInsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	conn, err := grpc.NewClient(cfg.OTelCollectorAddr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client to collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	environment := "production"
	if cfg.DevelopmentMode {
		environment = "development"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OTelSampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
