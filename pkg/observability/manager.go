package observability

import (
	"context"
	"net/http"
	"sync"
)

// Manager owns the tracing and metrics pipelines. A zero-valued or nil
// Manager is fully usable and records nothing, so callers can wire it
// unconditionally and leave enablement to configuration.
type Manager struct {
	config  Config
	tracer  *Tracer
	metrics *Metrics
	mu      sync.RWMutex
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// Initialize builds the exporters and instruments the config enables.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tracer, err := NewTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracer = tracer

	metrics, err := NewMetrics(m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics

	return nil
}

// Tracer returns the span factory. The result may be a nil Tracer; its
// methods hand out no-op spans in that case.
func (m *Manager) Tracer() *Tracer {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer
}

// Metrics returns the measurement recorder, a no-op one when metrics
// are disabled.
func (m *Manager) Metrics() Recorder {
	if m == nil {
		return NoopMetrics{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// SpanLog returns the in-memory span log, or nil when it is disabled.
func (m *Manager) SpanLog() *SpanLog {
	return m.Tracer().SpanLog()
}

// MetricsEnabled reports whether a real metrics pipeline is running.
func (m *Manager) MetricsEnabled() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics != nil
}

// MetricsEndpoint returns the configured exposition path.
func (m *Manager) MetricsEndpoint() string {
	if m == nil || m.config.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.config.Metrics.Endpoint
}

// Middleware wraps HTTP handlers with request tracing and metrics.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return HTTPMiddleware(m.Tracer(), m.Metrics())
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}
	return m.metrics.Shutdown(ctx)
}
