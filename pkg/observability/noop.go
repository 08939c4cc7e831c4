package observability

import (
	"context"
	"net/http"
	"time"
)

// NoopManager returns a Manager that records nothing. Use this when
// observability is completely disabled.
func NoopManager() *Manager {
	return &Manager{}
}

// NoopMetrics is a metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) RecordCardFetch(_ context.Context, _ time.Duration, _ error)          {}
func (NoopMetrics) RecordDispatch(_ context.Context, _ string, _ time.Duration, _ error) {}
func (NoopMetrics) RecordStreamEvent(_ context.Context, _ string)                        {}
func (NoopMetrics) RecordValidationDefects(_ context.Context, _ string, _ int)           {}
func (NoopMetrics) SetSessionsActive(_ context.Context, _ int)                           {}

func (NoopMetrics) RecordHTTPRequest(_, _ string, _ int, _ time.Duration, _, _ int64) {}

// Handler returns a handler that reports metrics as not enabled.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

// Recorder defines the interface for recording metrics.
// This allows for dependency injection and easier testing.
type Recorder interface {
	RecordCardFetch(ctx context.Context, duration time.Duration, err error)
	RecordDispatch(ctx context.Context, mode string, duration time.Duration, err error)
	RecordStreamEvent(ctx context.Context, kind string)
	RecordValidationDefects(ctx context.Context, target string, count int)
	SetSessionsActive(ctx context.Context, count int)

	RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64)

	Handler() http.Handler
}

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopMetrics{}
)
