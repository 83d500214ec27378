package observability

import (
	"context"
	"log"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer

	confirmCounter  otelmetric.Int64Counter
	confirmDuration otelmetric.Float64Histogram
	remoteDuration  otelmetric.Float64Histogram
}

// New registers the OpenTelemetry meter on the default Prometheus registry
// and installs a tracer provider built from opts.
func New(serviceName string, opts ...sdktrace.TracerProviderOption) *Observability {
	return NewWithRegisterer(serviceName, promclient.DefaultRegisterer, opts...)
}

// NewWithRegisterer is New with an explicit Prometheus registerer.
func NewWithRegisterer(serviceName string, reg promclient.Registerer, opts ...sdktrace.TracerProviderOption) *Observability {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	o := &Observability{
		tracerProvider: tp,
		tracer:         tp.Tracer(serviceName),
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	confirmCounter, _ := meter.Int64Counter(
		"confirmation.processed",
		otelmetric.WithDescription("Number of confirmation attempts"),
	)
	confirmDuration, _ := meter.Float64Histogram(
		"confirmation.duration",
		otelmetric.WithDescription("Confirmation attempt duration"),
		otelmetric.WithUnit("ms"),
	)
	remoteDuration, _ := meter.Float64Histogram(
		"confirmation.remote.duration",
		otelmetric.WithDescription("Remote confirmation call duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.confirmCounter = confirmCounter
	o.confirmDuration = confirmDuration
	o.remoteDuration = remoteDuration
	return o
}

// NewNoop records nothing. Safe to use from any number of tests.
func NewNoop() *Observability {
	return &Observability{tracer: noop.NewTracerProvider().Tracer("noop")}
}

// StartSpan starts a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordConfirmation(ctx context.Context, status, path string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("status", status),
		attribute.String("path", path),
	)
	if o.confirmCounter != nil {
		o.confirmCounter.Add(ctx, 1, attrs)
	}
	if o.confirmDuration != nil {
		o.confirmDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordRemoteCall(ctx context.Context, transport, outcome string, duration time.Duration) {
	if o.remoteDuration != nil {
		o.remoteDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("transport", transport),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
