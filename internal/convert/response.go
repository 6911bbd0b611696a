package convert

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"claude-gateway/internal/proto/anthropic"
	"claude-gateway/internal/proto/openai"
	"claude-gateway/internal/toolid"
)

// Response translates a complete OpenAI chat response into the Anthropic
// response shape. model is the name the client asked for, not whatever the
// backend reports serving. Total: missing usage counts as zero, an empty
// choice list yields empty content with a null stop reason.
func Response(resp openai.ChatResponse, model string, ids *toolid.Mapping) anthropic.MessagesResponse {
	out := anthropic.MessagesResponse{
		ID:      "msg_" + uuid.NewString(),
		Type:    "message",
		Role:    "assistant",
		Model:   model,
		Content: []anthropic.ContentBlock{},
	}
	if resp.Usage != nil {
		out.Usage = anthropic.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		out.Content = append(out.Content, anthropic.TextBlock(*choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		out.Content = append(out.Content, anthropic.ContentBlock{
			Type:  anthropic.BlockToolUse,
			ID:    ids.Restore(call.ID),
			Name:  call.Function.Name,
			Input: toolInput(call.Function.Arguments),
		})
	}
	out.StopReason = StopReason(choice.FinishReason)
	return out
}

// StopReason maps a backend finish reason onto the client-facing stop
// reason vocabulary. Total over all inputs including absence; anything
// unrecognized maps to nil rather than leaking backend vocabulary.
func StopReason(finishReason *string) *string {
	if finishReason == nil {
		return nil
	}
	var stop string
	switch *finishReason {
	case "stop":
		stop = anthropic.StopEndTurn
	case "length":
		stop = anthropic.StopMaxTokens
	case "tool_calls":
		stop = anthropic.StopToolUse
	default:
		return nil
	}
	return &stop
}

// toolInput returns the call arguments as a JSON object. Backends
// occasionally emit truncated argument text; an empty object is the only
// shape every client accepts in that case.
func toolInput(arguments string) json.RawMessage {
	if arguments == "" || !gjson.Valid(arguments) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(arguments)
}
