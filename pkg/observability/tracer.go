package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var noopTracer = noop.NewTracerProvider().Tracer("agentlens")

// Tracer wraps the OpenTelemetry tracer with helpers for the span shapes
// the inspector emits. A nil Tracer is safe to use and records nothing.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	spanLog  *SpanLog
}

// NewTracer builds a Tracer from the given config. A disabled config
// yields (nil, nil); the nil Tracer keeps all call sites working.
func NewTracer(ctx context.Context, cfg TracingConfig) (*Tracer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.IsInsecure() {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}

	var spanLog *SpanLog
	if cfg.IsSpanLogEnabled() {
		spanLog = NewSpanLog(cfg.SpanLogSize)
		// Synchronous so spans show up on the debug endpoint the moment
		// they end, not on the batcher's schedule.
		providerOpts = append(providerOpts, sdktrace.WithSyncer(spanLog))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)

	return &Tracer{
		provider: tp,
		tracer:   tp.Tracer("agentlens"),
		spanLog:  spanLog,
	}, nil
}

// Start begins a span with the given name.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noopTracer.Start(ctx, name)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartCardFetch begins a span covering one agent card resolution.
func (t *Tracer) StartCardFetch(ctx context.Context, agentURL string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanCardFetch,
		trace.WithAttributes(
			attribute.String(AttrAgentURL, agentURL),
		),
	)
}

// StartDispatch begins a span covering one message dispatch cycle.
func (t *Tracer) StartDispatch(ctx context.Context, connectionID, mode string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanSessionDispatch,
		trace.WithAttributes(
			attribute.String(AttrSessionID, connectionID),
			attribute.String(AttrDispatchMode, mode),
		),
	)
}

// RecordError marks the span failed and records the error on it.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SpanLog returns the in-memory span log, or nil when it is disabled.
func (t *Tracer) SpanLog() *SpanLog {
	if t == nil {
		return nil
	}
	return t.spanLog
}

// Shutdown flushes pending spans and releases the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
