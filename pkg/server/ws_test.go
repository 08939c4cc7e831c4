package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newFakeAgent starts an agent that serves its card and answers every
// message/send with a completed task carrying one text artifact.
func newFakeAgent(t *testing.T) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/.well-known/agent-card.json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, agentCardJSON(ts.URL, false))
		case r.Method == http.MethodPost:
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"jsonrpc": "2.0", "id": %q, "result": {
				"id": "task-1",
				"contextId": "ctx-1",
				"kind": "task",
				"status": {"state": "completed"},
				"artifacts": [{"artifactId": "art-1", "parts": [{"kind": "text", "text": "All done."}]}]
			}}`, req["id"])
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

type wsFrame struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var f wsFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "payload": payload}); err != nil {
		t.Fatalf("failed to send %s: %v", event, err)
	}
}

func TestWebSocketConnectedFrame(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	f := readFrame(t, conn)
	if f.Event != "connected" {
		t.Fatalf("first frame event = %q, want connected", f.Event)
	}
	if sid, _ := f.Payload["sid"].(string); sid == "" {
		t.Error("connected frame has no sid")
	}
}

func TestWebSocketSessionFlow(t *testing.T) {
	agent := newFakeAgent(t)
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readFrame(t, conn) // connected

	sendFrame(t, conn, "initialize_client", map[string]any{"url": agent.URL})

	f := readFrame(t, conn)
	if f.Event != "client_initialized" {
		t.Fatalf("event = %q, want client_initialized", f.Event)
	}
	if f.Payload["status"] != "success" {
		t.Fatalf("initialization status = %v, want success (%v)", f.Payload["status"], f.Payload["message"])
	}

	sendFrame(t, conn, "send_message", map[string]any{"message": "hello", "id": "req-1"})

	f = readFrame(t, conn)
	if f.Event != "debug_log" || f.Payload["type"] != "request" {
		t.Fatalf("frame = %q/%v, want debug_log request", f.Event, f.Payload["type"])
	}
	if f.Payload["id"] != "req-1" {
		t.Errorf("request debug id = %v, want req-1", f.Payload["id"])
	}
	data, _ := f.Payload["data"].(map[string]any)
	if data["method"] != "message/send" {
		t.Errorf("request method = %v, want message/send", data["method"])
	}

	f = readFrame(t, conn)
	if f.Event != "debug_log" || f.Payload["type"] != "response" {
		t.Fatalf("frame = %q/%v, want debug_log response", f.Event, f.Payload["type"])
	}
	// The task's own id takes over as the correlation id.
	if f.Payload["id"] != "task-1" {
		t.Errorf("response debug id = %v, want task-1", f.Payload["id"])
	}

	f = readFrame(t, conn)
	if f.Event != "agent_response" {
		t.Fatalf("event = %q, want agent_response", f.Event)
	}
	if f.Payload["id"] != "task-1" {
		t.Errorf("response id = %v, want task-1", f.Payload["id"])
	}
	if f.Payload["final_message"] != "All done." {
		t.Errorf("final_message = %v, want the artifact text", f.Payload["final_message"])
	}
	errs, ok := f.Payload["validation_errors"].([]any)
	if !ok {
		t.Fatal("agent_response has no validation_errors")
	}
	if len(errs) != 0 {
		t.Errorf("validation_errors = %v, want none", errs)
	}
}

func TestWebSocketInitializeFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readFrame(t, conn) // connected

	sendFrame(t, conn, "initialize_client", map[string]any{"url": deadURL})

	f := readFrame(t, conn)
	if f.Event != "client_initialized" {
		t.Fatalf("event = %q, want client_initialized", f.Event)
	}
	if f.Payload["status"] != "error" {
		t.Errorf("status = %v, want error", f.Payload["status"])
	}
	if msg, _ := f.Payload["message"].(string); msg == "" {
		t.Error("failed initialization carries no message")
	}
}

func TestWebSocketSendWithoutInitialize(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readFrame(t, conn) // connected

	sendFrame(t, conn, "send_message", map[string]any{"message": "hi", "id": "req-9"})

	f := readFrame(t, conn)
	if f.Event != "agent_response" {
		t.Fatalf("event = %q, want agent_response", f.Event)
	}
	if f.Payload["error"] != "Client not initialized." {
		t.Errorf("error = %v, want not-initialized message", f.Payload["error"])
	}
	if f.Payload["id"] != "req-9" {
		t.Errorf("id = %v, want req-9", f.Payload["id"])
	}
}

func TestWebSocketUnknownEventKeepsConnection(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readFrame(t, conn) // connected

	sendFrame(t, conn, "no_such_event", map[string]any{"x": 1})
	sendFrame(t, conn, "send_message", map[string]any{"message": "hi", "id": "req-2"})

	f := readFrame(t, conn)
	if f.Event != "agent_response" {
		t.Fatalf("event = %q, want agent_response after an unknown event", f.Event)
	}
	if f.Payload["id"] != "req-2" {
		t.Errorf("id = %v, want req-2", f.Payload["id"])
	}
}

func TestAgentCardMirrorsDebugLog(t *testing.T) {
	agent := newFakeAgent(t)
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	f := readFrame(t, conn)
	sid, _ := f.Payload["sid"].(string)
	if sid == "" {
		t.Fatal("connected frame has no sid")
	}

	resp, body := postJSON(t, ts.URL+"/agent-card", fmt.Sprintf(`{"url": %q, "sid": %q}`, agent.URL, sid))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", resp.StatusCode, body["error"])
	}

	f = readFrame(t, conn)
	if f.Event != "debug_log" || f.Payload["type"] != "request" {
		t.Fatalf("frame = %q/%v, want debug_log request", f.Event, f.Payload["type"])
	}
	if f.Payload["id"] != "http-agent-card" {
		t.Errorf("debug id = %v, want http-agent-card", f.Payload["id"])
	}
	data, _ := f.Payload["data"].(map[string]any)
	if data["endpoint"] != "/agent-card" {
		t.Errorf("endpoint = %v, want /agent-card", data["endpoint"])
	}

	f = readFrame(t, conn)
	if f.Event != "debug_log" || f.Payload["type"] != "response" {
		t.Fatalf("frame = %q/%v, want debug_log response", f.Event, f.Payload["type"])
	}
	data, _ = f.Payload["data"].(map[string]any)
	if data["status"] != float64(http.StatusOK) {
		t.Errorf("mirrored status = %v, want 200", data["status"])
	}
}

func TestWebSocketDisconnectReleasesSession(t *testing.T) {
	agent := newFakeAgent(t)
	s, ts := newTestServer(t)
	conn := dialWS(t, ts)
	readFrame(t, conn) // connected

	sendFrame(t, conn, "initialize_client", map[string]any{"url": agent.URL})
	f := readFrame(t, conn)
	if f.Payload["status"] != "success" {
		t.Fatalf("initialization failed: %v", f.Payload["message"])
	}
	if n := s.bridge.Store().Len(); n != 1 {
		t.Fatalf("store len = %d after initialize, want 1", n)
	}

	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for s.bridge.Store().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not released after disconnect, store len = %d", s.bridge.Store().Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
