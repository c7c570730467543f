package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaInstruction renders the system-prompt suffix providers append when
// asking for schema-conforming JSON output.
func SchemaInstruction(schema map[string]any) string {
	encoded, err := json.Marshal(schema)
	if err != nil {
		encoded = []byte("{}")
	}
	return fmt.Sprintf(
		"Respond with a single JSON object matching this schema and nothing else: %s",
		encoded,
	)
}

// ParseJSONObject extracts a JSON object from model output, tolerating
// markdown code fences and leading prose around the object.
func ParseJSONObject(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if fenced := stripFence(trimmed); fenced != "" {
		trimmed = fenced
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	return obj, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	body := strings.TrimPrefix(text, "```json")
	body = strings.TrimPrefix(body, "```")
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}
