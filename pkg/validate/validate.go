// Package validate checks decoded A2A payloads against the protocol's
// structural rules and reports defects as human-readable strings.
//
// Validation is advisory: defects are surfaced to the operator alongside the
// raw payload so non-conformant agents can be diagnosed; nothing here blocks
// the pipeline. The functions operate on already-decoded JSON
// (map[string]any) and never panic on malformed input; a missing or
// wrong-typed field is a defect, not an error.
package validate

import (
	"fmt"
	"strings"

	"github.com/agentlens/agentlens/pkg/protocol"
)

// agentCardRequiredFields are the top-level fields every agent card must
// declare.
var agentCardRequiredFields = []string{
	"name", "description", "url", "version", "capabilities",
	"defaultInputModes", "defaultOutputModes", "skills",
}

// AgentCard validates a decoded agent card. An empty result means the card
// is structurally conformant.
func AgentCard(card map[string]any) []string {
	defects := []string{}

	for _, field := range agentCardRequiredFields {
		if _, ok := card[field]; !ok {
			defects = append(defects, fmt.Sprintf("Required field is missing: '%s'.", field))
		}
	}

	if raw, ok := card["url"]; ok {
		url, _ := raw.(string)
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			defects = append(defects, "Field 'url' must be an absolute URL starting with http:// or https://.")
		}
	}

	if raw, ok := card["capabilities"]; ok {
		if _, isObject := raw.(map[string]any); !isObject {
			defects = append(defects, "Field 'capabilities' must be an object.")
		}
	}

	for _, field := range []string{"defaultInputModes", "defaultOutputModes"} {
		raw, ok := card[field]
		if !ok {
			continue
		}
		items, isList := raw.([]any)
		if !isList {
			defects = append(defects, fmt.Sprintf("Field '%s' must be an array of strings.", field))
			continue
		}
		for _, item := range items {
			if _, isString := item.(string); !isString {
				defects = append(defects, fmt.Sprintf("All items in '%s' must be strings.", field))
				break
			}
		}
	}

	if raw, ok := card["skills"]; ok {
		skills, isList := raw.([]any)
		switch {
		case !isList:
			defects = append(defects, "Field 'skills' must be an array of AgentSkill objects.")
		case len(skills) == 0:
			defects = append(defects, "Field 'skills' array is empty. Agent must have at least one skill if it performs actions.")
		}
	}

	return defects
}

// ResultPayload validates a result payload by its kind tag. A payload
// without a kind yields exactly one defect, as does an unrecognized kind.
func ResultPayload(payload map[string]any) []string {
	raw, ok := payload["kind"]
	if !ok {
		return []string{"Response from agent is missing required 'kind' field."}
	}

	kind, _ := raw.(string)
	switch kind {
	case protocol.KindTask:
		return validateTask(payload)
	case protocol.KindStatusUpdate:
		return validateStatusUpdate(payload)
	case protocol.KindArtifactUpdate:
		return validateArtifactUpdate(payload)
	case protocol.KindMessage:
		return validateMessage(payload)
	default:
		return []string{fmt.Sprintf("Unknown message kind received: '%v'.", raw)}
	}
}

func validateTask(payload map[string]any) []string {
	defects := []string{}
	if _, ok := payload["id"]; !ok {
		defects = append(defects, "Task object missing required field: 'id'.")
	}
	if !hasStatusState(payload) {
		defects = append(defects, "Task object missing required field: 'status.state'.")
	}
	return defects
}

func validateStatusUpdate(payload map[string]any) []string {
	defects := []string{}
	if !hasStatusState(payload) {
		defects = append(defects, "StatusUpdate object missing required field: 'status.state'.")
	}
	return defects
}

func validateArtifactUpdate(payload map[string]any) []string {
	defects := []string{}
	raw, ok := payload["artifact"]
	if !ok {
		defects = append(defects, "ArtifactUpdate object missing required field: 'artifact'.")
		return defects
	}
	artifact, _ := raw.(map[string]any)
	if !hasNonEmptyList(artifact, "parts") {
		defects = append(defects, "Artifact object must have a non-empty 'parts' array.")
	}
	return defects
}

func validateMessage(payload map[string]any) []string {
	defects := []string{}
	if !hasNonEmptyList(payload, "parts") {
		defects = append(defects, "Message object must have a non-empty 'parts' array.")
	}
	role, _ := payload["role"].(string)
	if role != protocol.RoleAgent {
		defects = append(defects, "Message from agent must have 'role' set to 'agent'.")
	}
	return defects
}

func hasStatusState(payload map[string]any) bool {
	status, ok := payload["status"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = status["state"]
	return ok
}

func hasNonEmptyList(obj map[string]any, key string) bool {
	if obj == nil {
		return false
	}
	list, ok := obj[key].([]any)
	return ok && len(list) > 0
}
