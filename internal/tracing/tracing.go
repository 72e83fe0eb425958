// Package tracing bootstraps the OpenTelemetry tracer provider and exposes
// a gin middleware that starts one span per request. Grounded on root
// app.go's initTracer (otlptracegrpc exporter, always-on sampler, batched
// export) and middleware/tracing.go's TracingMiddleware (skip /health and
// /metrics, attach request span to context).
package tracing

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const defaultServiceName = "openwebui-openrouter-gateway"

// InitTracer configures the global tracer provider against
// OTEL_EXPORTER_OTLP_ENDPOINT (default localhost:4317). It never blocks
// startup on exporter connectivity: failures are logged and a no-op
// provider is left in place so request handling is never gated on a
// tracing backend being reachable.
func InitTracer(ctx context.Context) *sdktrace.TracerProvider {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		log.Printf("tracing: failed to create OTLP exporter, tracing disabled: %v", err)
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		log.Printf("tracing: failed to build resource: %v", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp
}

// Middleware starts a span per request, skipping the liveness and metrics
// endpoints since they carry no business signal worth tracing.
func Middleware() gin.HandlerFunc {
	tracer := otel.GetTracerProvider().Tracer("gateway")
	return func(c *gin.Context) {
		if p := c.Request.URL.Path; p == "/health" || p == "/metrics" {
			c.Next()
			return
		}
		path := c.FullPath()
		ctx, span := tracer.Start(c.Request.Context(), path)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}
