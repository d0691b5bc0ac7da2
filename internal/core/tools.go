package core

import (
	"encoding/json"
	"strings"
)

// NewToolMessage builds the message carrying a tool's result back to the
// model. When wrapArrays is set, a result whose JSON is a top-level array
// is wrapped as {"result": [...]}. Some OpenAI-compatible backends reject
// bare top-level arrays in tool content; the wrapping exists only for
// compatibility with those and is off by default.
func NewToolMessage(toolCallID, content string, wrapArrays bool) Message {
	if wrapArrays {
		content = WrapToolResultArray(content)
	}
	return Message{
		Role:       "tool",
		ToolCallID: toolCallID,
		Content:    content,
	}
}

// WrapToolResultArray wraps a top-level JSON array in {"result": ...}.
// Anything that is not a valid top-level JSON array passes through untouched.
func WrapToolResultArray(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "[") {
		return content
	}
	if !json.Valid([]byte(trimmed)) {
		return content
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{
		"result": json.RawMessage(trimmed),
	})
	if err != nil {
		return content
	}
	return string(wrapped)
}
