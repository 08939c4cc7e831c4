package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestRecorderNilSafe(t *testing.T) {
	ctx := context.Background()

	var m *Metrics

	m.RecordCardFetch(ctx, 100*time.Millisecond, nil)
	m.RecordDispatch(ctx, "unary", 200*time.Millisecond, errors.New("boom"))
	m.RecordStreamEvent(ctx, "task")
	m.RecordValidationDefects(ctx, "result", 3)
	m.SetSessionsActive(ctx, 1)
	m.RecordHTTPRequest(http.MethodGet, "/", 200, 10*time.Millisecond, 0, 128)

	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on nil metrics returned %v", err)
	}

	t.Log("✅ Metrics recording is nil-safe")
}

func TestTracerNilSafe(t *testing.T) {
	ctx := context.Background()

	var tr *Tracer

	_, span := tr.StartCardFetch(ctx, "http://localhost:8080")
	if span == nil {
		t.Fatal("nil tracer handed out a nil span")
	}
	tr.RecordError(span, errors.New("boom"))
	span.End()

	_, span = tr.StartDispatch(ctx, "conn-1", "streaming")
	span.End()

	if tr.SpanLog() != nil {
		t.Error("nil tracer has a span log")
	}
	if err := tr.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown on nil tracer returned %v", err)
	}

	t.Log("✅ Tracing is nil-safe")
}

func TestNoopManager(t *testing.T) {
	ctx := context.Background()
	m := NoopManager()

	_, span := m.Tracer().StartDispatch(ctx, "conn-1", "unary")
	span.End()
	m.Metrics().RecordDispatch(ctx, "unary", 50*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("noop metrics handler status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	if err := m.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{
		Tracing: TracingConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.SetDefaults()

	if cfg.Tracing.ServiceName != "agentlens" {
		t.Errorf("ServiceName = %q, want agentlens", cfg.Tracing.ServiceName)
	}
	if cfg.Tracing.Exporter != "otlp" {
		t.Errorf("Exporter = %q, want otlp", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.Endpoint != DefaultOTLPEndpoint {
		t.Errorf("Endpoint = %q, want %q", cfg.Tracing.Endpoint, DefaultOTLPEndpoint)
	}
	if cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("SamplingRate = %f, want 1.0", cfg.Tracing.SamplingRate)
	}
	if !cfg.Tracing.IsInsecure() {
		t.Error("Expected insecure by default")
	}
	if !cfg.Tracing.IsSpanLogEnabled() {
		t.Error("Expected span log enabled when tracing is enabled")
	}
	if cfg.Metrics.Endpoint != "/metrics" {
		t.Errorf("Metrics endpoint = %q, want /metrics", cfg.Metrics.Endpoint)
	}
	if cfg.Metrics.Namespace != "agentlens" {
		t.Errorf("Metrics namespace = %q, want agentlens", cfg.Metrics.Namespace)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		c := Config{Tracing: TracingConfig{Enabled: true}, Metrics: MetricsConfig{Enabled: true}}
		c.SetDefaults()
		return c
	}

	t.Run("defaults pass", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("sampling rate out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Tracing.SamplingRate = 1.5
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Expected error for sampling_rate 1.5")
		}
		if !strings.Contains(err.Error(), "sampling_rate") {
			t.Errorf("error = %v, want mention of sampling_rate", err)
		}
	})

	t.Run("unknown exporter", func(t *testing.T) {
		cfg := valid()
		cfg.Tracing.Exporter = "jaeger"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for unknown exporter")
		}
	})

	t.Run("disabled skips checks", func(t *testing.T) {
		cfg := Config{Tracing: TracingConfig{Exporter: "bogus", SamplingRate: 9}}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil for disabled tracing", err)
		}
	})
}

func TestSpanLogCapture(t *testing.T) {
	ctx := context.Background()
	log := NewSpanLog(10)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(log))
	defer func() { _ = tp.Shutdown(ctx) }()

	tracer := tp.Tracer("test")

	_, span := tracer.Start(ctx, SpanSessionDispatch,
		trace.WithAttributes(attribute.String(AttrSessionID, "conn-1")))
	span.End()

	// Request spans are deliberately not retained.
	_, ignored := tracer.Start(ctx, SpanHTTPRequest)
	ignored.End()

	if log.Count() != 1 {
		t.Fatalf("retained %d spans, want 1", log.Count())
	}

	got := log.BySession("conn-1")
	if len(got) != 1 {
		t.Fatalf("BySession returned %d spans, want 1", len(got))
	}
	if got[0].Name != SpanSessionDispatch {
		t.Errorf("span name = %q, want %q", got[0].Name, SpanSessionDispatch)
	}
	if log.Get(got[0].SpanID) == nil {
		t.Error("Get by span ID returned nil for a retained span")
	}
	if len(log.ByName(SpanSessionDispatch)) != 1 {
		t.Error("ByName missed the retained span")
	}
}

func TestSpanLogEviction(t *testing.T) {
	ctx := context.Background()
	log := NewSpanLog(2)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(log))
	defer func() { _ = tp.Shutdown(ctx) }()

	tracer := tp.Tracer("test")
	for i := 0; i < 3; i++ {
		_, span := tracer.Start(ctx, SpanCardFetch)
		span.End()
	}

	if log.Count() != 2 {
		t.Errorf("retained %d spans, want 2", log.Count())
	}
}

func TestManagerMetricsPipeline(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(Config{Metrics: MetricsConfig{Enabled: true, Namespace: "agentlens", Endpoint: "/metrics"}})
	if err := mgr.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer func() { _ = mgr.Shutdown(ctx) }()

	mgr.Metrics().RecordDispatch(ctx, "unary", 42*time.Millisecond, nil)
	mgr.Metrics().SetSessionsActive(ctx, 3)

	rec := httptest.NewRecorder()
	mgr.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "agentlens_dispatches_total") {
		t.Error("exposition is missing the dispatch counter")
	}
	if !strings.Contains(body, "agentlens_sessions_active") {
		t.Error("exposition is missing the sessions gauge")
	}
}

type captureRecorder struct {
	NoopMetrics
	method   string
	path     string
	code     int
	respSize int64
}

func (c *captureRecorder) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	c.method = method
	c.path = path
	c.code = statusCode
	c.respSize = respSize
}

func TestHTTPMiddlewareRecordsRequest(t *testing.T) {
	rec := &captureRecorder{}
	handler := HTTPMiddleware(nil, rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/agent-card", strings.NewReader("{}")))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if rec.method != http.MethodPost || rec.path != "/agent-card" {
		t.Errorf("recorded %s %s, want POST /agent-card", rec.method, rec.path)
	}
	if rec.code != http.StatusCreated {
		t.Errorf("recorded status = %d, want %d", rec.code, http.StatusCreated)
	}
	if rec.respSize != 2 {
		t.Errorf("recorded response size = %d, want 2", rec.respSize)
	}
}
