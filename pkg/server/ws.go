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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agentlens/agentlens/pkg/bridge"
)

// Inspector event protocol names. Frames are JSON objects
// {"event": <name>, "payload": <object>}.
const (
	// Outbound.
	eventConnected         = "connected"
	eventClientInitialized = "client_initialized"
	eventDebugLog          = "debug_log"
	eventAgentResponse     = "agent_response"

	// Inbound.
	eventInitializeClient = "initialize_client"
	eventSendMessage      = "send_message"
)

type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type outboundFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// wsConn is one inspector UI connection. It is the bridge.Emitter for
// every event addressed to that connection, including debug-log mirrors
// from the /agent-card endpoint, so writes are serialized: gorilla
// permits at most one concurrent writer.
type wsConn struct {
	id   string
	sock *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteJSON(outboundFrame{Event: event, Payload: payload})
}

func (c *wsConn) Initialized(result bridge.InitResult) error {
	return c.send(eventClientInitialized, result)
}

func (c *wsConn) DebugLog(entry bridge.DebugEntry) error {
	return c.send(eventDebugLog, entry)
}

func (c *wsConn) AgentResponse(payload map[string]any) error {
	return c.send(eventAgentResponse, payload)
}

// connRegistry tracks live connections by id so the /agent-card endpoint
// can mirror debug logs to the connection that asked for the lookup.
type connRegistry struct {
	mu    sync.RWMutex
	conns map[string]*wsConn
}

func newConnRegistry() *connRegistry {
	return &connRegistry{conns: make(map[string]*wsConn)}
}

func (r *connRegistry) add(c *wsConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *connRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *connRegistry) get(id string) (*wsConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *connRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		_ = c.sock.Close()
		delete(r.conns, id)
	}
}

// handleWebSocket upgrades the request and runs the connection's event
// loop. Inbound events are dispatched serially, so per-connection
// ordering matches the single-threaded model the bridge assumes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	conn := &wsConn{id: uuid.NewString(), sock: sock}
	s.conns.add(conn)
	slog.Info("Inspector connected", "connection", conn.id)

	// The connection's context outlives the (hijacked) request; dispatches
	// are cancelled when the read loop exits.
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()
		s.conns.remove(conn.id)
		s.bridge.Disconnect(conn.id)
		_ = sock.Close()
		slog.Info("Inspector disconnected", "connection", conn.id)
	}()

	// Tell the UI its connection id; it passes the id back as `sid` on
	// /agent-card lookups.
	if err := conn.send(eventConnected, map[string]string{"sid": conn.id}); err != nil {
		return
	}

	for {
		var f inboundFrame
		if err := sock.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("WebSocket read failed", "connection", conn.id, "error", err)
			}
			return
		}
		s.dispatchEvent(ctx, conn, f)
	}
}

// dispatchEvent routes one inbound frame to the bridge.
func (s *Server) dispatchEvent(ctx context.Context, conn *wsConn, f inboundFrame) {
	switch f.Event {
	case eventInitializeClient:
		var p struct {
			URL string `json:"url"`
		}
		s.decodePayload(conn.id, f, &p)
		s.bridge.Initialize(ctx, conn.id, p.URL, conn)

	case eventSendMessage:
		var p struct {
			Message string `json:"message"`
			ID      any    `json:"id"`
		}
		s.decodePayload(conn.id, f, &p)
		// The correlation id is usually a string but the protocol does not
		// insist on it; anything non-nil is carried through as text.
		correlation := ""
		if p.ID != nil {
			correlation = fmt.Sprint(p.ID)
		}
		s.bridge.SendMessage(ctx, conn.id, p.Message, correlation, conn)

	default:
		slog.Warn("Unknown inspector event", "connection", conn.id, "event", f.Event)
	}
}

func (s *Server) decodePayload(connID string, f inboundFrame, into any) {
	if len(f.Payload) == 0 {
		return
	}
	if err := json.Unmarshal(f.Payload, into); err != nil {
		slog.Warn("Undecodable event payload", "connection", connID, "event", f.Event, "error", err)
	}
}
