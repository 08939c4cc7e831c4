// Package extract derives a single human-readable summary line from an
// agent response payload.
//
// Task responses are heterogeneous: the same logical answer may arrive as
// a structured failure status, a produced artifact, or a message buried in
// conversation history. FinalMessage applies a fixed priority order over
// those shapes so the UI does not have to special-case each one.
package extract

import (
	"strings"

	"github.com/agentlens/agentlens/pkg/protocol"
)

// failedTaskFallback is reported when a task failed but its status carries
// no readable message.
const failedTaskFallback = "Task failed with an unknown error."

// FinalMessage returns a display string for the given result payload and
// whether one could be derived. The payload must already be decoded JSON.
//
// Rules are tried in order and evaluation stops at the first hit:
//
//  1. A failed status: status.message.parts[0].text, or a fixed fallback
//     when that path is absent or malformed.
//  2. The first artifact's first text part.
//  3. The most recent agent history message whose text contains the "**"
//     emphasis marker. Agents tend to bold their action summaries, so an
//     emphasized line usually is the outcome.
//  4. The most recent agent history message with any non-empty text.
//
// Rules 3 and 4 only apply to task payloads carrying a history list.
func FinalMessage(payload map[string]any) (string, bool) {
	if msg, ok := fromFailedStatus(payload); ok {
		return msg, true
	}
	if msg, ok := fromArtifacts(payload); ok {
		return msg, true
	}

	if kind, _ := payload["kind"].(string); kind != protocol.KindTask {
		return "", false
	}
	history, ok := payload["history"].([]any)
	if !ok {
		return "", false
	}

	if msg, ok := scanHistory(history, true); ok {
		return msg, true
	}
	return scanHistory(history, false)
}

func fromFailedStatus(payload map[string]any) (string, bool) {
	status, ok := payload["status"].(map[string]any)
	if !ok {
		return "", false
	}
	if state, _ := status["state"].(string); state != string(protocol.TaskStateFailed) {
		return "", false
	}

	message, ok := status["message"].(map[string]any)
	if !ok {
		return failedTaskFallback, true
	}
	parts, ok := message["parts"].([]any)
	if !ok || len(parts) == 0 {
		return failedTaskFallback, true
	}
	part, ok := parts[0].(map[string]any)
	if !ok {
		return failedTaskFallback, true
	}
	raw, present := part["text"]
	if !present {
		return failedTaskFallback, true
	}
	text, ok := raw.(string)
	if !ok {
		return failedTaskFallback, true
	}
	// An empty message text is treated as no message at all and the next
	// rule gets a chance, matching how a blank status renders in the UI.
	if text == "" {
		return "", false
	}
	return text, true
}

func fromArtifacts(payload map[string]any) (string, bool) {
	artifacts, ok := payload["artifacts"].([]any)
	if !ok || len(artifacts) == 0 {
		return "", false
	}
	first, ok := artifacts[0].(map[string]any)
	if !ok {
		return "", false
	}
	parts, ok := first["parts"].([]any)
	if !ok || len(parts) == 0 {
		return "", false
	}
	part, ok := parts[0].(map[string]any)
	if !ok {
		return "", false
	}
	text, _ := part["text"].(string)
	if text == "" {
		return "", false
	}
	return text, true
}

// scanHistory walks history newest-first looking for an agent message whose
// first part is text. With emphasized set, only a text containing "**"
// qualifies; otherwise any non-empty text does.
func scanHistory(history []any, emphasized bool) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		message, ok := history[i].(map[string]any)
		if !ok {
			continue
		}
		if role, _ := message["role"].(string); role != protocol.RoleAgent {
			continue
		}
		parts, ok := message["parts"].([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		part, ok := parts[0].(map[string]any)
		if !ok {
			continue
		}
		if kind, _ := part["kind"].(string); kind != protocol.PartKindText {
			continue
		}
		text, _ := part["text"].(string)

		if emphasized {
			if strings.Contains(text, "**") {
				return text, true
			}
			continue
		}
		if text != "" {
			return text, true
		}
	}
	return "", false
}
