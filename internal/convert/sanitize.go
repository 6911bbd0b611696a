package convert

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"claude-gateway/internal/proto/anthropic"
)

// SanitizeToolResult rewrites a tool_result block whose payload is a
// structured JSON value into one whose payload is that value serialized as
// a JSON string, which is the only payload shape some backends accept.
// String payloads pass through, so sanitizing twice is a no-op. Non
// tool_result blocks are returned unchanged.
func SanitizeToolResult(block anthropic.ContentBlock) anthropic.ContentBlock {
	if block.Type != anthropic.BlockToolResult || len(block.Content) == 0 {
		return block
	}
	parsed := gjson.ParseBytes(block.Content)
	if parsed.Type == gjson.String {
		return block
	}
	compacted := compactJSON(block.Content)
	quoted, err := json.Marshal(compacted)
	if err != nil {
		return block
	}
	block.Content = quoted
	return block
}

// toolResultString extracts the plain-text payload of a sanitized
// tool_result block.
func toolResultString(block anthropic.ContentBlock) string {
	if len(block.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(block.Content, &s); err == nil {
		return s
	}
	return compactJSON(block.Content)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
