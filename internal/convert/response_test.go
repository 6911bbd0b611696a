package convert

import (
	"encoding/json"
	"strings"
	"testing"

	"claude-gateway/internal/proto/openai"
	"claude-gateway/internal/toolid"
)

func strptr(s string) *string { return &s }

func TestStopReasonTotal(t *testing.T) {
	cases := []struct {
		in   *string
		want string // "" means nil
	}{
		{strptr("stop"), "end_turn"},
		{strptr("length"), "max_tokens"},
		{strptr("tool_calls"), "tool_use"},
		{strptr("content_filter"), ""},
		{strptr("weird_future_reason"), ""},
		{strptr(""), ""},
		{nil, ""},
	}
	for _, c := range cases {
		got := StopReason(c.in)
		if c.want == "" {
			if got != nil {
				t.Fatalf("StopReason(%v) = %q, want nil", c.in, *got)
			}
			continue
		}
		if got == nil || *got != c.want {
			t.Fatalf("StopReason(%q) = %v, want %q", *c.in, got, c.want)
		}
	}
}

func TestResponseTextAndUsage(t *testing.T) {
	resp := openai.ChatResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-backend-alias",
		Choices: []openai.Choice{{
			Message:      openai.ResponseMessage{Role: "assistant", Content: strptr("Hello!")},
			FinishReason: strptr("stop"),
		}},
		Usage: &openai.Usage{PromptTokens: 1, CompletionTokens: 1},
	}
	out := Response(resp, "m", toolid.NewMapping())
	if out.Model != "m" {
		t.Fatalf("model must be the caller override, got %q", out.Model)
	}
	if out.Role != "assistant" || len(out.Content) != 1 || out.Content[0].Text != "Hello!" {
		t.Fatalf("unexpected content: %+v", out.Content)
	}
	if out.StopReason == nil || *out.StopReason != "end_turn" {
		t.Fatalf("unexpected stop reason: %v", out.StopReason)
	}
	if out.Usage.InputTokens != 1 || out.Usage.OutputTokens != 1 {
		t.Fatalf("unexpected usage: %+v", out.Usage)
	}
	if !strings.HasPrefix(out.ID, "msg_") {
		t.Fatalf("unexpected id: %q", out.ID)
	}
}

func TestResponseZeroChoices(t *testing.T) {
	out := Response(openai.ChatResponse{}, "m", toolid.NewMapping())
	if out.StopReason != nil {
		t.Fatalf("expected nil stop reason, got %q", *out.StopReason)
	}
	if out.Usage.InputTokens != 0 || out.Usage.OutputTokens != 0 {
		t.Fatalf("missing usage must count as zero: %+v", out.Usage)
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"content":[]`) {
		t.Fatalf("content field must be present and empty, got %s", b)
	}
}

func TestResponseNullContentYieldsEmptyList(t *testing.T) {
	resp := openai.ChatResponse{
		Choices: []openai.Choice{{
			Message:      openai.ResponseMessage{Role: "assistant", Content: nil},
			FinishReason: strptr("stop"),
		}},
	}
	out := Response(resp, "m", toolid.NewMapping())
	if len(out.Content) != 0 {
		t.Fatalf("expected empty content, got %+v", out.Content)
	}
	b, _ := json.Marshal(out)
	if !strings.Contains(string(b), `"content":[]`) {
		t.Fatalf("content must marshal as [], got %s", b)
	}
}

func TestResponseToolCallsRestoreOriginalIDs(t *testing.T) {
	ids := toolid.NewMapping()
	short := ids.Shorten("toolu_original")

	resp := openai.ChatResponse{
		Choices: []openai.Choice{{
			Message: openai.ResponseMessage{
				Role: "assistant",
				ToolCalls: []openai.ToolCall{
					{ID: short, Type: "function", Function: openai.ToolCallFunction{Name: "get_weather", Arguments: `{"location":"SF"}`}},
					{ID: "call_backend", Type: "function", Function: openai.ToolCallFunction{Name: "other", Arguments: "{bad json"}},
				},
			},
			FinishReason: strptr("tool_calls"),
		}},
	}
	out := Response(resp, "m", ids)
	if len(out.Content) != 2 {
		t.Fatalf("expected 2 tool_use blocks, got %+v", out.Content)
	}
	if out.Content[0].ID != "toolu_original" {
		t.Fatalf("expected restored id, got %q", out.Content[0].ID)
	}
	if out.Content[1].ID != "call_backend" {
		t.Fatalf("unknown id must pass through, got %q", out.Content[1].ID)
	}
	if string(out.Content[1].Input) != `{}` {
		t.Fatalf("invalid arguments must become empty object, got %s", out.Content[1].Input)
	}
	if out.StopReason == nil || *out.StopReason != "tool_use" {
		t.Fatalf("unexpected stop reason: %v", out.StopReason)
	}
}
