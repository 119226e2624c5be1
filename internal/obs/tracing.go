package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingConfig selects the span exporter. Exporter "none" installs only the
// propagators, so inbound trace headers still reach the logs.
type TracingConfig struct {
	ServiceName   string
	Version       string
	Endpoint      string
	Exporter      string
	SamplingRatio float64
	Environment   string
}

func noopShutdown(context.Context) error { return nil }

// InitTracer sets the global tracer provider. The returned func flushes and
// stops it.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var exporter sdktrace.SpanExporter
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Exporter)); kind {
	case "none":
		return noopShutdown, nil
	case "", "otlp":
		var opts []otlptracehttp.Option
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", kind)
	}

	attrs := resource.WithAttributes(
		semconv.ServiceNameKey.String(firstNonEmpty(cfg.ServiceName, "sponsor-api")),
		semconv.ServiceVersionKey.String(firstNonEmpty(cfg.Version, "dev")),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	)
	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithTelemetrySDK(), attrs)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio(cfg.SamplingRatio)))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// samplingRatio maps unset or out-of-range ratios to "sample everything".
func samplingRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
