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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentlens/agentlens/pkg/bridge"
	"github.com/agentlens/agentlens/pkg/rpcclient"
	"github.com/agentlens/agentlens/pkg/validate"
)

// agentCardDebugID tags debug-log mirrors of /agent-card lookups so the
// UI can tell them apart from session traffic.
const agentCardDebugID = "http-agent-card"

// handleAgentCard fetches and validates an agent card without touching
// any session. Body: {"url": ..., "sid": ...}; sid names the WebSocket
// connection whose debug panel mirrors the exchange.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	var requestData map[string]any
	if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
		slog.Warn("Failed to parse agent card lookup body", "error", err)
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body."})
		return
	}

	agentURL, _ := requestData["url"].(string)
	sid, _ := requestData["sid"].(string)
	if agentURL == "" || sid == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Agent URL and SID are required."})
		return
	}

	s.mirrorDebug(sid, bridge.DebugEntry{
		Type: bridge.DebugRequest,
		Data: map[string]any{"endpoint": "/agent-card", "payload": requestData},
		ID:   agentCardDebugID,
	})

	status, payload := s.lookupCard(r.Context(), agentURL)

	// The response is mirrored whichever branch produced it, so the debug
	// panel always shows both sides of the exchange.
	s.mirrorDebug(sid, bridge.DebugEntry{
		Type: bridge.DebugResponse,
		Data: map[string]any{"status": status, "payload": payload},
		ID:   agentCardDebugID,
	})

	s.writeJSON(w, status, payload)
}

// lookupCard resolves the card with a short-lived client bound by the
// card lookup timeout and maps failures onto the endpoint's status
// contract: 502 for transport failures, 500 for everything else.
func (s *Server) lookupCard(ctx context.Context, agentURL string) (int, map[string]any) {
	ctx, span := s.obs.Tracer().StartCardFetch(ctx, agentURL)
	defer span.End()

	client := rpcclient.New(agentURL, rpcclient.Config{Timeout: s.cfg.Agent.CardTimeout})
	defer client.Close()

	start := time.Now()
	card, err := client.ResolveCard(ctx)
	s.obs.Metrics().RecordCardFetch(ctx, time.Since(start), err)
	if err != nil {
		s.obs.Tracer().RecordError(span, err)
		var terr *rpcclient.TransportError
		if errors.As(err, &terr) {
			slog.Error("Failed to connect to agent", "agent_url", agentURL, "error", err)
			return http.StatusBadGateway, map[string]any{
				"error": fmt.Sprintf("Failed to connect to agent: %v", err),
			}
		}
		slog.Error("Agent card lookup failed", "agent_url", agentURL, "error", err)
		return http.StatusInternalServerError, map[string]any{
			"error": fmt.Sprintf("An internal server error occurred: %v", err),
		}
	}

	defects := validate.AgentCard(card.Raw)
	s.obs.Metrics().RecordValidationDefects(ctx, "agent-card", len(defects))
	return http.StatusOK, map[string]any{
		"card":              card.Raw,
		"validation_errors": defects,
	}
}

// mirrorDebug forwards a debug entry to the named connection when it is
// live and silently drops it otherwise.
func (s *Server) mirrorDebug(sid string, entry bridge.DebugEntry) {
	conn, ok := s.conns.get(sid)
	if !ok {
		return
	}
	if err := conn.DebugLog(entry); err != nil {
		slog.Debug("Failed to mirror debug log", "connection", sid, "error", err)
	}
}
