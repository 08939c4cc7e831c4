// Package rpcclient talks JSON-RPC to a remote A2A agent over HTTP: it
// resolves the agent card from its well-known location, issues unary
// message/send calls, and consumes message/stream calls as server-sent
// events.
//
// A Client is owned by exactly one session and its methods are meant to be
// called from that session's event loop. Close is the one exception: it
// may be called from any goroutine and cancels every in-flight call,
// including open streams.
package rpcclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/agentlens/agentlens/pkg/protocol"
)

// DefaultTimeout bounds card resolution and unary calls when the
// configuration does not say otherwise. Agents can be slow, so the
// default is generous.
const DefaultTimeout = 10 * time.Minute

const maxSSELineSize = 1024 * 1024

// TransportError marks a failure to reach the agent over HTTP, as opposed
// to a protocol-level or decoding failure. The message is the underlying
// error's, unchanged, so it can be shown to the operator as-is.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Card bundles an agent card in the two forms the inspector needs: the
// raw JSON document exactly as the agent served it, for validation and
// display, and a typed decoding for reading capability flags.
type Card struct {
	Raw   map[string]any
	Typed a2a.AgentCard
}

// Streaming reports whether the agent advertises streaming support.
func (c *Card) Streaming() bool {
	return c.Typed.Capabilities.Streaming
}

// StreamItem is one element of a streaming call: a response envelope, or
// a terminal transport error. After an item with Err set, the channel is
// closed.
type StreamItem struct {
	Response *protocol.Response
	Err      error
}

// Config controls a Client's network behavior.
type Config struct {
	// Timeout bounds card resolution and unary calls. Streaming calls are
	// never subject to it; they run until the agent closes the stream or
	// the client is closed.
	Timeout time.Duration
}

// Client is a JSON-RPC client bound to a single agent URL.
type Client struct {
	agentURL   string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	card       *Card

	scope     context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a client for the agent at agentURL. No network traffic
// happens until ResolveCard or a call method is used.
func New(agentURL string, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	scope, cancel := context.WithCancel(context.Background())
	return &Client{
		agentURL: strings.TrimSuffix(agentURL, "/"),
		endpoint: strings.TrimSuffix(agentURL, "/"),
		timeout:  timeout,
		// The http.Client carries no Timeout of its own; per-call deadlines
		// come from scoped so that streams stay open indefinitely.
		httpClient: &http.Client{},
		scope:      scope,
		cancel:     cancel,
	}
}

// URL returns the agent URL the client was created with.
func (c *Client) URL() string { return c.agentURL }

// Card returns the most recently resolved card, or nil before ResolveCard
// has succeeded.
func (c *Client) Card() *Card { return c.card }

// ResolveCard fetches the agent card from /.well-known/agent-card.json,
// falling back to the older /.well-known/agent.json location when the
// agent answers 404. On success the card's own url field becomes the
// endpoint for subsequent calls.
func (c *Client) ResolveCard(ctx context.Context) (*Card, error) {
	ctx, cancel := c.scoped(ctx, c.timeout)
	defer cancel()

	body, err := c.fetchCard(ctx, protocol.AgentCardPath)
	if err != nil {
		var nf *notFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
		body, err = c.fetchCard(ctx, protocol.AgentCardPathLegacy)
		if err != nil {
			return nil, err
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}

	card := &Card{Raw: raw}
	if err := json.Unmarshal(body, &card.Typed); err != nil {
		// A card that does not fit the typed schema is still inspectable;
		// validation reports the shape problems as defects.
		slog.Debug("Agent card does not match typed schema", "url", c.agentURL, "error", err)
		card.Typed = a2a.AgentCard{}
	}

	if card.Typed.URL != "" {
		c.endpoint = strings.TrimSuffix(card.Typed.URL, "/")
	}
	c.card = card
	return card, nil
}

func (c *Client) fetchCard(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.agentURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, &notFoundError{path: path}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent card fetch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return body, nil
}

// Call issues a unary JSON-RPC call and returns the decoded response
// envelope. A JSON-RPC error envelope is not an error here; the caller
// inspects Response.Error.
func (c *Client) Call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ctx, cancel := c.scoped(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &envelope, nil
}

// CallStreaming issues a streaming JSON-RPC call and returns a channel of
// response envelopes, one per server-sent event, in arrival order. The
// channel is closed when the agent ends the stream, after a terminal
// item carrying a transport error, or when the client is closed.
func (c *Client) CallStreaming(ctx context.Context, req *protocol.Request) (<-chan StreamItem, error) {
	ctx, cancel := c.scoped(ctx, 0)

	resp, err := c.post(ctx, req, "text/event-stream")
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	items := make(chan StreamItem, 10)
	go func() {
		defer cancel()
		defer close(items)
		defer resp.Body.Close()
		c.readStream(ctx, resp.Body, items)
	}()
	return items, nil
}

// readStream scans server-sent events off the response body and delivers
// one StreamItem per data payload. Event names and comment lines are
// ignored; only data matters, and each data block is one complete
// JSON-RPC envelope.
func (c *Client) readStream(ctx context.Context, body io.Reader, items chan<- StreamItem) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	var data strings.Builder
	flush := func() bool {
		if data.Len() == 0 {
			return true
		}
		payload := data.String()
		data.Reset()

		var envelope protocol.Response
		if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
			slog.Debug("Skipping undecodable stream event", "error", err)
			return true
		}
		select {
		case items <- StreamItem{Response: &envelope}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !flush() {
				return
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:, id:, retry: and comment lines carry nothing we need.
		}
	}
	if !flush() {
		return
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		select {
		case items <- StreamItem{Err: &TransportError{Err: err}}:
		case <-ctx.Done():
		}
	}
}

func (c *Client) post(ctx context.Context, rpcReq *protocol.Request, accept string) (*http.Response, error) {
	payload, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

// Close cancels every in-flight call and stream and releases idle
// connections. It is safe to call more than once and from any goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.httpClient.CloseIdleConnections()
	})
	return nil
}

// scoped derives a per-call context that is also canceled when the client
// is closed. A zero timeout means no deadline.
func (c *Client) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	stop := context.AfterFunc(c.scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type notFoundError struct {
	path string
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("agent card not found at %s", e.path)
}
