package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func (m *Metrics) RecordCardFetch(ctx context.Context, duration time.Duration, err error) {
	if m == nil || m.cardFetchDuration == nil {
		return
	}

	m.cardFetchDuration.Record(ctx, duration.Seconds())
	m.cardFetchTotal.Add(ctx, 1)

	if err != nil && m.cardFetchErrors != nil {
		m.cardFetchErrors.Add(ctx, 1)
	}
}

func (m *Metrics) RecordDispatch(ctx context.Context, mode string, duration time.Duration, err error) {
	if m == nil || m.dispatchDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
	)

	m.dispatchDuration.Record(ctx, duration.Seconds(), attrs)
	m.dispatchTotal.Add(ctx, 1, attrs)

	if err != nil && m.dispatchErrors != nil {
		m.dispatchErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordStreamEvent(ctx context.Context, kind string) {
	if m == nil || m.streamEvents == nil {
		return
	}

	m.streamEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

func (m *Metrics) RecordValidationDefects(ctx context.Context, target string, count int) {
	if m == nil || m.validationDefects == nil || count == 0 {
		return
	}

	m.validationDefects.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("target", target),
	))
}

func (m *Metrics) SetSessionsActive(ctx context.Context, count int) {
	if m == nil || m.sessionsActive == nil {
		return
	}

	m.sessionsActive.Record(ctx, int64(count))
}

func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	if m == nil || m.httpDuration == nil {
		return
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("code", statusCode),
	)

	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpTotal.Add(ctx, 1, attrs)

	if m.httpRequestSize != nil {
		m.httpRequestSize.Add(ctx, reqSize, attrs)
	}
	if m.httpResponseSize != nil {
		m.httpResponseSize.Add(ctx, respSize, attrs)
	}
}
