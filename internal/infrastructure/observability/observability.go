package observability

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"canvas-server/services/media-engine/internal/config"
)

const tracerName = "canvas-server/media-engine"

// Setup configures the OTLP trace exporter when tracing is enabled and
// returns a shutdown hook.
func Setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (func(context.Context) error, error) {
	if !cfg.EnableTracing {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if cfg.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("tracing enabled")
	return provider.Shutdown, nil
}

// GetTracer returns the tracer for the media engine.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
