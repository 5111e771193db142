package provider

import (
	"encoding/json"
	"strings"
)

type modelEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExtractModelIDs pulls model identifiers out of a model-listing response.
// It recognizes three shapes: {"data":[...]} (OpenAI style), {"models":[...]}
// (Google/Mistral style) and a bare top-level array. The second return is
// false when the body matches none of them.
func ExtractModelIDs(body []byte) ([]string, bool) {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Models json.RawMessage `json:"models"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Data) > 0 {
			if ids, ok := extractFromList(envelope.Data); ok {
				return ids, true
			}
		}
		if len(envelope.Models) > 0 {
			if ids, ok := extractFromList(envelope.Models); ok {
				return ids, true
			}
		}
	}

	// Bare top-level array.
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err == nil {
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			return extractFromList(raw)
		}
	}

	return nil, false
}

func extractFromList(list json.RawMessage) ([]string, bool) {
	// Entries are either plain strings or objects with an id or name field.
	var asStrings []string
	if err := json.Unmarshal(list, &asStrings); err == nil {
		return normalizeIDs(asStrings), true
	}

	var asObjects []modelEntry
	if err := json.Unmarshal(list, &asObjects); err == nil {
		ids := make([]string, 0, len(asObjects))
		for _, entry := range asObjects {
			id := entry.ID
			if id == "" {
				id = entry.Name
			}
			if id != "" {
				ids = append(ids, id)
			}
		}
		return normalizeIDs(ids), true
	}

	return nil, false
}

// normalizeIDs strips the "models/" prefix Google prepends to identifiers.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimPrefix(id, "models/")
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
