// Package convert maps between the Anthropic-shaped facade protocol and the
// OpenAI chat-completions protocol spoken by upstream backends.
package convert

import (
	"encoding/json"

	"claude-gateway/internal/proto/anthropic"
	"claude-gateway/internal/proto/openai"
	"claude-gateway/internal/toolid"
)

// Request translates an Anthropic messages request into an OpenAI chat
// request. It never fails on well-formed input and never mutates req. Tool
// identifiers are shortened through ids so that a tool_use and the
// tool_result answering it carry the same identifier at the backend.
func Request(req anthropic.MessagesRequest, ids *toolid.Mapping) openai.ChatRequest {
	out := openai.ChatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSeqs,
		Stream:      req.Stream,
		ToolChoice:  translateToolChoice(req.ToolChoice),
	}

	if sys := anthropic.SystemText(req.System); sys != "" {
		out.Messages = append(out.Messages, openai.ChatMessage{Role: "system", Content: sys})
	}

	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, translateMessage(msg, ids)...)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return out
}

// translateMessage expands one Anthropic message into one or more OpenAI
// messages: tool_result blocks must become standalone tool-role messages,
// everything else stays on the original role. Block order is preserved.
func translateMessage(msg anthropic.Message, ids *toolid.Mapping) []openai.ChatMessage {
	if msg.Content.IsText() {
		return []openai.ChatMessage{{Role: msg.Role, Content: msg.Content.Text}}
	}

	var out []openai.ChatMessage
	var parts []openai.ContentPart
	var calls []openai.ToolCall

	flush := func() {
		if len(parts) == 0 && len(calls) == 0 {
			return
		}
		m := openai.ChatMessage{Role: msg.Role, ToolCalls: calls}
		switch {
		case len(parts) == 1 && parts[0].Type == "text":
			m.Content = parts[0].Text
		case len(parts) > 0:
			m.Content = parts
		}
		out = append(out, m)
		parts, calls = nil, nil
	}

	for _, block := range msg.Content.Blocks {
		switch block.Type {
		case anthropic.BlockText:
			parts = append(parts, openai.ContentPart{Type: "text", Text: block.Text})
		case anthropic.BlockImage:
			if block.Source == nil {
				continue
			}
			parts = append(parts, openai.ContentPart{
				Type:     "image_url",
				ImageURL: &openai.ImageURL{URL: dataURI(block.Source.MediaType, block.Source.Data)},
			})
		case anthropic.BlockToolUse:
			calls = append(calls, openai.ToolCall{
				ID:   ids.Shorten(block.ID),
				Type: "function",
				Function: openai.ToolCallFunction{
					Name:      block.Name,
					Arguments: argumentsText(block.Input),
				},
			})
		case anthropic.BlockToolResult:
			flush()
			out = append(out, openai.ChatMessage{
				Role:       "tool",
				ToolCallID: ids.Shorten(block.ToolUseID),
				Content:    toolResultString(SanitizeToolResult(block)),
			})
		}
	}
	flush()
	return out
}

func dataURI(mediaType, base64Data string) string {
	return "data:" + mediaType + ";base64," + base64Data
}

func argumentsText(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	return string(input)
}

// translateToolChoice maps the Anthropic tool_choice object onto the OpenAI
// form: auto -> "auto", any -> "required", a named tool -> the function
// selector. Unrecognized input is dropped rather than forwarded broken.
func translateToolChoice(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var tc struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil
	}
	switch tc.Type {
	case "auto":
		return json.RawMessage(`"auto"`)
	case "any":
		return json.RawMessage(`"required"`)
	case "tool":
		b, _ := json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.Name},
		})
		return b
	default:
		return nil
	}
}
