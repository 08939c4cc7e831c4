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

package bridge

// Emitter delivers bridge events to the UI connection they belong to.
// The transport layer implements it; a returned error means the
// connection is gone and the current dispatch should stop.
type Emitter interface {
	// Initialized reports the outcome of an initialize request.
	Initialized(result InitResult) error

	// DebugLog forwards one raw protocol exchange for the debug panel.
	DebugLog(entry DebugEntry) error

	// AgentResponse delivers a normalized agent response payload.
	AgentResponse(payload map[string]any) error
}

// Initialization outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Debug entry types.
const (
	DebugRequest  = "request"
	DebugResponse = "response"
	DebugError    = "error"
)

// InitResult is the payload of a client_initialized event.
type InitResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// DebugEntry is the payload of a debug_log event: one side of a protocol
// exchange, tagged with the correlation id it belongs to.
type DebugEntry struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	ID   string `json:"id"`
}

// errorResponse is the agent_response shape for any failed dispatch. The
// id lets the UI resolve the pending request it belongs to.
func errorResponse(message, id string) map[string]any {
	return map[string]any{"error": message, "id": id}
}
