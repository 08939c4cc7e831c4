// Copyright 2025 The AgentLens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the inspector's HTTP surface: the embedded web UI,
// the WebSocket event transport, and the sessionless agent-card lookup.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agentlens/agentlens/pkg/bridge"
	"github.com/agentlens/agentlens/pkg/config"
	"github.com/agentlens/agentlens/pkg/observability"
)

// webUIHTML contains the embedded inspector UI entry page; the rest of
// the assets are served from staticFS under /static/.
//
//go:embed static/index.html
var webUIHTML []byte

//go:embed static
var staticFS embed.FS

// Server is the AgentLens HTTP server.
type Server struct {
	cfg    *config.Config
	bridge *bridge.Bridge
	obs    *observability.Manager
	conns  *connRegistry

	server   *http.Server
	upgrader websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithObservability sets the observability manager for tracing and metrics.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Server) {
		s.obs = obs
	}
}

// New creates a server for the given config and bridge.
func New(cfg *config.Config, b *bridge.Bridge, opts ...Option) *Server {
	if cfg.Server.Host == "" || cfg.Server.Port == 0 {
		cfg.Server.SetDefaults()
	}

	s := &Server{
		cfg:    cfg,
		bridge: b,
		conns:  newConnRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The inspector is a local tool; the UI may be opened from
			// anywhere, so origins are not restricted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.obs == nil {
		s.obs = observability.NoopManager()
	}

	return s
}

// handler composes the route table with the middleware chain
// (order: observability -> logging -> cors -> routes). Observability
// wraps everything so all requests are traced/measured.
func (s *Server) handler() http.Handler {
	var handler http.Handler = s.setupRoutes()
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.obs.Middleware()(handler)
	return handler
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Address(),
		Handler:      s.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Server.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server. WebSocket connections are
// hijacked from the listener, so they are closed explicitly first; their
// read loops then run each session's teardown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("HTTP server shutting down")
	s.conns.closeAll()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the HTTP server address.
func (s *Server) Address() string {
	return s.cfg.Server.Address()
}

// setupRoutes configures the HTTP routes:
//   - GET  /            → inspector UI
//   - GET  /static/*    → embedded UI assets
//   - GET  /ws          → inspector event protocol (WebSocket)
//   - POST /agent-card  → sessionless card lookup
//   - GET  /health      → health check
//   - GET  /metrics     → Prometheus exposition (when enabled)
//   - GET  /debug/spans → recent captured spans (when the span log is on)
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.FileServer(http.FS(staticFS)))

	r.Get("/ws", s.handleWebSocket)
	r.Post("/agent-card", s.handleAgentCard)

	r.Get("/health", s.handleHealth)

	if s.obs.MetricsEnabled() {
		endpoint := s.obs.MetricsEndpoint()
		r.Method(http.MethodGet, endpoint, s.obs.Metrics().Handler())
		slog.Info("Metrics endpoint enabled", "path", endpoint)
	}

	if s.obs.SpanLog() != nil {
		r.Get("/debug/spans", s.handleSpans)
	}

	return r
}

// handleIndex serves the inspector UI.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(webUIHTML)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSpans returns recently captured spans, optionally filtered by
// ?session= or ?name=.
func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	log := s.obs.SpanLog()

	var spans []*observability.LoggedSpan
	switch {
	case r.URL.Query().Get("session") != "":
		spans = log.BySession(r.URL.Query().Get("session"))
	case r.URL.Query().Get("name") != "":
		spans = log.ByName(r.URL.Query().Get("name"))
	default:
		spans = log.All()
	}

	// Newest first; the map behind the log has no order of its own.
	sort.Slice(spans, func(i, j int) bool {
		return spans[i].StartTime.After(spans[j].StartTime)
	})

	s.writeJSON(w, http.StatusOK, map[string]any{
		"spans": spans,
		"total": len(spans),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers from the server config.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.Server.CORS
	if cors == nil {
		// Default permissive CORS for development
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}

	allowMethods := strings.Join(cors.AllowedMethods, ", ")
	allowHeaders := strings.Join(cors.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, allowed := range cors.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		if allowMethods != "" {
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
		}
		if allowHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests without wrapping the ResponseWriter, so
// the WebSocket upgrade keeps its http.Hijacker.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
