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

// Package bridge orchestrates sessions between UI connections and remote
// A2A agents: card resolution on initialize, unary or streaming message
// dispatch per the agent's advertised capabilities, and teardown on
// disconnect. Every response flows through validation and final-message
// extraction before it reaches the UI.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentlens/agentlens/pkg/extract"
	"github.com/agentlens/agentlens/pkg/observability"
	"github.com/agentlens/agentlens/pkg/protocol"
	"github.com/agentlens/agentlens/pkg/rpcclient"
	"github.com/agentlens/agentlens/pkg/validate"
)

// Dispatch modes, also used as metric labels.
const (
	ModeUnary     = "unary"
	ModeStreaming = "streaming"
)

// AgentClient is the remote-agent transport the bridge drives. It is
// satisfied by *rpcclient.Client.
type AgentClient interface {
	ResolveCard(ctx context.Context) (*rpcclient.Card, error)
	Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	CallStreaming(ctx context.Context, req *protocol.Request) (<-chan rpcclient.StreamItem, error)
	Close() error
}

// Config controls how the bridge talks to agents.
type Config struct {
	// CallTimeout bounds card resolution and unary calls made on behalf
	// of a session. Streaming calls are unbounded.
	CallTimeout time.Duration

	// AcceptedOutputModes is declared in every outbound message's send
	// configuration.
	AcceptedOutputModes []string
}

// Bridge coordinates the session store, the validation and extraction
// pipeline, and the per-agent RPC clients. One Bridge serves all
// connections; per-connection ordering comes from each connection's
// event loop calling into it serially.
type Bridge struct {
	store *Store
	cfg   Config
	obs   *observability.Manager

	// dial creates the client for a new session. Tests swap it out.
	dial func(agentURL string) AgentClient
}

// New creates a Bridge backed by the given store. A nil manager disables
// instrumentation.
func New(store *Store, cfg Config, obs *observability.Manager) *Bridge {
	if obs == nil {
		obs = observability.NoopManager()
	}
	b := &Bridge{store: store, cfg: cfg, obs: obs}
	b.dial = func(agentURL string) AgentClient {
		return rpcclient.New(agentURL, rpcclient.Config{Timeout: cfg.CallTimeout})
	}
	return b
}

// Store returns the session store the bridge operates on.
func (b *Bridge) Store() *Store { return b.store }

// Initialize resolves the agent card at agentURL and, on success, stores
// a session for the connection. The outcome is reported through the
// emitter; a failed resolution leaves the connection without a session
// and releases the half-built client.
func (b *Bridge) Initialize(ctx context.Context, connectionID, agentURL string, em Emitter) {
	if agentURL == "" {
		b.emitInitialized(em, InitResult{Status: StatusError, Message: "Agent URL is required."})
		return
	}

	ctx, span := b.obs.Tracer().StartCardFetch(ctx, agentURL)
	defer span.End()

	client := b.dial(agentURL)
	start := time.Now()
	card, err := client.ResolveCard(ctx)
	b.obs.Metrics().RecordCardFetch(ctx, time.Since(start), err)
	if err != nil {
		b.obs.Tracer().RecordError(span, err)
		if cerr := client.Close(); cerr != nil {
			slog.Warn("Failed to close agent client after failed initialization", "connection", connectionID, "error", cerr)
		}
		slog.Warn("Session initialization failed", "connection", connectionID, "agent_url", agentURL, "error", err)
		b.emitInitialized(em, InitResult{Status: StatusError, Message: err.Error()})
		return
	}

	b.store.Put(&Session{ConnectionID: connectionID, Client: client, Card: card})
	b.obs.Metrics().SetSessionsActive(ctx, b.store.Len())
	slog.Info("Session initialized", "connection", connectionID, "agent_url", agentURL, "streaming", card.Streaming())
	b.emitInitialized(em, InitResult{Status: StatusSuccess})
}

// SendMessage runs one complete dispatch cycle for the connection: build
// the envelope, pick unary or streaming per the session's card, and
// forward every response through validation and extraction. All failure
// paths emit a response carrying the correlation id, so the UI never has
// a request left hanging.
func (b *Bridge) SendMessage(ctx context.Context, connectionID, text, correlationID string, em Emitter) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	// One broken dispatch must not take down the connection's event loop.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatch panicked", "connection", connectionID, "panic", r)
			b.emitResponse(em, errorResponse(fmt.Sprintf("Failed to send message: %v", r), correlationID))
		}
	}()

	sess, ok := b.store.Get(connectionID)
	if !ok {
		b.emitResponse(em, errorResponse("Client not initialized.", correlationID))
		return
	}

	mode := ModeUnary
	if sess.Card.Streaming() {
		mode = ModeStreaming
	}

	ctx, span := b.obs.Tracer().StartDispatch(ctx, connectionID, mode)
	defer span.End()

	params := protocol.NewSendParams(text, b.cfg.AcceptedOutputModes)

	start := time.Now()
	var err error
	if mode == ModeStreaming {
		err = b.dispatchStreaming(ctx, sess, correlationID, params, em)
	} else {
		err = b.dispatchUnary(ctx, sess, correlationID, params, em)
	}
	b.obs.Metrics().RecordDispatch(ctx, mode, time.Since(start), err)
	if err != nil {
		b.obs.Tracer().RecordError(span, err)
	}
}

// Disconnect removes the connection's session, if any, and releases its
// client. Safe to call for connections that never initialized.
func (b *Bridge) Disconnect(connectionID string) {
	sess, ok := b.store.Remove(connectionID)
	if !ok {
		return
	}
	if err := sess.Client.Close(); err != nil {
		slog.Warn("Failed to close agent client", "connection", connectionID, "error", err)
	}
	b.obs.Metrics().SetSessionsActive(context.Background(), b.store.Len())
	slog.Info("Session released", "connection", connectionID)
}

func (b *Bridge) dispatchUnary(ctx context.Context, sess *Session, correlationID string, params protocol.SendParams, em Emitter) error {
	req := protocol.NewRequest(correlationID, protocol.MethodMessageSend, params)
	if err := em.DebugLog(DebugEntry{Type: DebugRequest, Data: req, ID: correlationID}); err != nil {
		return err
	}

	resp, err := sess.Client.Call(ctx, req)
	if err != nil {
		b.emitResponse(em, errorResponse(failure(err), correlationID))
		return err
	}
	return b.deliver(ctx, resp, correlationID, em)
}

func (b *Bridge) dispatchStreaming(ctx context.Context, sess *Session, correlationID string, params protocol.SendParams, em Emitter) error {
	req := protocol.NewRequest(correlationID, protocol.MethodMessageStream, params)
	if err := em.DebugLog(DebugEntry{Type: DebugRequest, Data: req, ID: correlationID}); err != nil {
		return err
	}

	items, err := sess.Client.CallStreaming(ctx, req)
	if err != nil {
		b.emitResponse(em, errorResponse(failure(err), correlationID))
		return err
	}

	for item := range items {
		if item.Err != nil {
			b.emitResponse(em, errorResponse(failure(item.Err), correlationID))
			return item.Err
		}
		b.obs.Metrics().RecordStreamEvent(ctx, eventKind(item.Response))
		if err := b.deliver(ctx, item.Response, correlationID, em); err != nil {
			return err
		}
	}
	return nil
}

// deliver normalizes one response envelope and forwards it. An error
// envelope surfaces the remote's message as-is, bypassing validation and
// extraction. A result payload is re-tagged with the id the UI should
// correlate on (the payload's own id wins over the envelope's), gets an
// optional final message, and carries its validation defects.
func (b *Bridge) deliver(ctx context.Context, resp *protocol.Response, correlationID string, em Emitter) error {
	if resp.Error != nil {
		message := resp.Error.Message
		if message == "" {
			message = "Unknown error"
		}
		if err := em.DebugLog(DebugEntry{Type: DebugError, Data: resp.Error, ID: correlationID}); err != nil {
			return err
		}
		return em.AgentResponse(errorResponse(message, correlationID))
	}

	payload := resp.Result
	if payload == nil {
		payload = map[string]any{}
	}

	responseID := correlationID
	if id, ok := payload["id"].(string); ok && id != "" {
		responseID = id
	}
	payload["id"] = responseID

	if msg, ok := extract.FinalMessage(payload); ok {
		payload["final_message"] = msg
	}

	defects := validate.ResultPayload(payload)
	payload["validation_errors"] = defects
	b.obs.Metrics().RecordValidationDefects(ctx, "result", len(defects))

	if err := em.DebugLog(DebugEntry{Type: DebugResponse, Data: payload, ID: responseID}); err != nil {
		return err
	}
	return em.AgentResponse(payload)
}

func (b *Bridge) emitInitialized(em Emitter, result InitResult) {
	if err := em.Initialized(result); err != nil {
		slog.Debug("Failed to emit initialization result", "error", err)
	}
}

func (b *Bridge) emitResponse(em Emitter, payload map[string]any) {
	if err := em.AgentResponse(payload); err != nil {
		slog.Debug("Failed to emit agent response", "error", err)
	}
}

func failure(err error) string {
	return fmt.Sprintf("Failed to send message: %v", err)
}

func eventKind(resp *protocol.Response) string {
	if resp.Error != nil {
		return "error"
	}
	if kind, ok := resp.Result["kind"].(string); ok && kind != "" {
		return kind
	}
	return "unknown"
}
