// Package tokencount estimates token usage before a backend has reported
// any. Counts seed the input_tokens field of message_start events and back
// the count_tokens endpoint.
package tokencount

import (
	"encoding/json"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"claude-gateway/internal/proto/anthropic"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// loadCodec initializes the process-wide BPE codec once. The codec holds no
// per-call state and is safe for concurrent use.
func loadCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.O200kBase)
		if err != nil {
			return
		}
		codec = c
	})
	return codec
}

// Text counts the tokens in s. Encoding failures fall back to the
// characters/4 estimate; the caller never sees an error.
func Text(s string) int {
	if s == "" {
		return 0
	}
	if enc := loadCodec(); enc != nil {
		if _, tokens, err := enc.Encode(s); err == nil {
			return len(tokens)
		}
	}
	return estimate(s)
}

// estimate approximates one token per four characters, rounded up.
func estimate(s string) int {
	return (len(s) + 3) / 4
}

// Request sums the token counts of everything the backend will be prompted
// with: message text, serialized tool_use inputs and tool_result payloads,
// the system prompt, and each tool's name, description, and schema.
func Request(messages []anthropic.Message, system any, tools []anthropic.ToolDefinition) int {
	total := 0
	for _, msg := range messages {
		if msg.Content.IsText() {
			total += Text(msg.Content.Text)
			continue
		}
		for _, block := range msg.Content.Blocks {
			switch block.Type {
			case anthropic.BlockText:
				total += Text(block.Text)
			case anthropic.BlockToolUse:
				total += Text(serialized(block.Input))
			case anthropic.BlockToolResult:
				total += Text(serialized(block.Content))
			case anthropic.BlockImage:
				// Image tokens are model-specific; not estimated here.
			}
		}
	}
	if sys := anthropic.SystemText(system); sys != "" {
		total += Text(sys)
	}
	for _, tool := range tools {
		total += Text(tool.Name)
		total += Text(tool.Description)
		total += Text(serialized(tool.InputSchema))
	}
	return total
}

func serialized(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
