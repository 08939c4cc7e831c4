// Package protocol defines the A2A wire vocabulary the inspector speaks:
// JSON-RPC envelopes, the result-payload kind union, task states, part
// kinds, and outbound message construction.
// Specification: https://a2a-protocol.org/latest/specification/
package protocol

import (
	"github.com/google/uuid"
)

// ============================================================================
// RPC METHODS AND DISCOVERY PATHS
// ============================================================================

const (
	MethodMessageSend   = "message/send"
	MethodMessageStream = "message/stream"
)

// Well-known agent card locations. The legacy path predates the current
// spec and is still served by older agents.
const (
	AgentCardPath       = "/.well-known/agent-card.json"
	AgentCardPathLegacy = "/.well-known/agent.json"
)

// ============================================================================
// RESULT PAYLOAD KINDS
// ============================================================================

// Result payloads carry a `kind` discriminator; this is the closed set the
// protocol defines. Anything else is reported as an unknown kind.
const (
	KindTask           = "task"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
	KindMessage        = "message"
)

// TaskState is the lifecycle state carried in task status objects.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

const (
	PartKindText = "text"
	PartKindFile = "file"
	PartKindData = "data"
)

// ============================================================================
// OUTBOUND MESSAGE CONSTRUCTION
// ============================================================================

// DefaultOutputModes is the content-mode set the inspector declares it can
// render when sending messages.
var DefaultOutputModes = []string{"text/plain", "video/mp4"}

// Part is a single content fragment of an outbound message. The inspector
// only ever sends text parts; inbound parts stay as raw decoded JSON.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Message is the outbound chat message shape for message/send and
// message/stream params.
type Message struct {
	Kind      string `json:"kind"`
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
}

// SendConfiguration declares what the caller accepts back.
type SendConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes"`
}

// SendParams is the params object of message/send and message/stream.
type SendParams struct {
	Message       Message           `json:"message"`
	Configuration SendConfiguration `json:"configuration"`
}

// NewSendParams wraps text as a user-role message with a single text part
// and a freshly generated message id. The message id is independent of the
// JSON-RPC correlation id; responses are matched by envelope id, not by
// message id.
func NewSendParams(text string, outputModes []string) SendParams {
	if len(outputModes) == 0 {
		outputModes = DefaultOutputModes
	}
	return SendParams{
		Message: Message{
			Kind:      KindMessage,
			MessageID: uuid.NewString(),
			Role:      RoleUser,
			Parts:     []Part{{Kind: PartKindText, Text: text}},
		},
		Configuration: SendConfiguration{AcceptedOutputModes: outputModes},
	}
}
