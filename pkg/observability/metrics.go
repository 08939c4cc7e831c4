package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records the inspector's operational measurements through the
// OpenTelemetry Prometheus bridge and serves them from its own registry.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	cardFetchDuration metric.Float64Histogram
	cardFetchTotal    metric.Int64Counter
	cardFetchErrors   metric.Int64Counter

	dispatchDuration metric.Float64Histogram
	dispatchTotal    metric.Int64Counter
	dispatchErrors   metric.Int64Counter

	streamEvents      metric.Int64Counter
	validationDefects metric.Int64Counter
	sessionsActive    metric.Int64Gauge

	httpDuration     metric.Float64Histogram
	httpTotal        metric.Int64Counter
	httpRequestSize  metric.Int64Counter
	httpResponseSize metric.Int64Counter
}

// NewMetrics builds the metric instruments from the given config. A
// disabled config yields (nil, nil); the nil Metrics records nothing.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter("agentlens")

	m := &Metrics{registry: registry, provider: provider}

	m.cardFetchDuration, err = meter.Float64Histogram(
		"card_fetch_duration_seconds",
		metric.WithDescription("Agent card resolution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card fetch duration histogram: %w", err)
	}

	m.cardFetchTotal, err = meter.Int64Counter(
		"card_fetches_total",
		metric.WithDescription("Total agent card resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card fetches counter: %w", err)
	}

	m.cardFetchErrors, err = meter.Int64Counter(
		"card_fetch_errors_total",
		metric.WithDescription("Total failed agent card resolutions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create card fetch errors counter: %w", err)
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"dispatch_duration_seconds",
		metric.WithDescription("Message dispatch cycle duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch duration histogram: %w", err)
	}

	m.dispatchTotal, err = meter.Int64Counter(
		"dispatches_total",
		metric.WithDescription("Total message dispatch cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatches counter: %w", err)
	}

	m.dispatchErrors, err = meter.Int64Counter(
		"dispatch_errors_total",
		metric.WithDescription("Total failed message dispatch cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch errors counter: %w", err)
	}

	m.streamEvents, err = meter.Int64Counter(
		"stream_events_total",
		metric.WithDescription("Total streamed events by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream events counter: %w", err)
	}

	m.validationDefects, err = meter.Int64Counter(
		"validation_defects_total",
		metric.WithDescription("Total compliance defects found in agent payloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation defects counter: %w", err)
	}

	m.sessionsActive, err = meter.Int64Gauge(
		"sessions_active",
		metric.WithDescription("Connections with an initialized agent session"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active sessions gauge: %w", err)
	}

	m.httpDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	m.httpTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	m.httpRequestSize, err = meter.Int64Counter(
		"http_request_bytes_total",
		metric.WithDescription("Total bytes received in HTTP request bodies"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request size counter: %w", err)
	}

	m.httpResponseSize, err = meter.Int64Counter(
		"http_response_bytes_total",
		metric.WithDescription("Total bytes written in HTTP responses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http response size counter: %w", err)
	}

	return m, nil
}

// Handler serves the Prometheus exposition for this collector's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return NoopMetrics{}.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and releases the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
