package otel

import (
	"context"

	"github.com/corray333/backend-labs/payment/internal/jaeger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Config selects the service name and collector. Disabled leaves the
// global no-op provider in place.
type Config struct {
	ServiceName    string
	JaegerEndpoint string
	Disabled       bool
}

type OtelController struct {
	traceProvider *sdktrace.TracerProvider
}

func MustInitOtel(cfg Config) *OtelController {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Disabled {
		return &OtelController{}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "payment-svc"
	}

	jaegerExporter := jaeger.MustNewJaeger(cfg.JaegerEndpoint)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(jaegerExporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)

	return &OtelController{
		traceProvider: tp,
	}
}

func (o *OtelController) Shutdown(ctx context.Context) error {
	if o.traceProvider == nil {
		return nil
	}

	return o.traceProvider.Shutdown(ctx)
}
