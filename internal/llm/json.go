package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON value inside a model reply. It accepts a bare
// value, one wrapped in a Markdown fence, or an object or array surrounded by
// prose.
func ExtractJSON(reply string) (string, error) {
	reply = stripFence(reply)
	if json.Valid([]byte(reply)) {
		return reply, nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start := strings.Index(reply, pair[0])
		end := strings.LastIndex(reply, pair[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := reply[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := reply
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON in reply: %q", preview)
}

// DecodeJSON extracts and unmarshals the JSON of a reply into T.
func DecodeJSON[T any](reply string) (T, error) {
	var out T
	raw, err := ExtractJSON(reply)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

func stripFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimSpace(trimmed)
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
