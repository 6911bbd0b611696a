package anthropic

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"claude-gateway/internal/metrics"
	proto "claude-gateway/internal/proto/anthropic"
	provider "claude-gateway/internal/providers/openai"
)

func newTestHandler(t *testing.T, upstream http.HandlerFunc) (*Handler, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	h := NewHandler(provider.Upstream{BaseURL: srv.URL}, metrics.New(), 5*time.Second)
	return h, srv
}

func TestMessagesUnary(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "m" {
			t.Errorf("model not forwarded: %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(
		`{"model":"m","max_tokens":10,"messages":[{"role":"user","content":"Hi"}]}`))
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp proto.MessagesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Role != "assistant" || len(resp.Content) != 1 || resp.Content[0].Text != "Hello!" {
		t.Fatalf("unexpected response: %s", rr.Body.String())
	}
	if resp.StopReason == nil || *resp.StopReason != "end_turn" {
		t.Fatalf("unexpected stop reason: %v", resp.StopReason)
	}
	if resp.Model != "m" {
		t.Fatalf("model must be the requested name, got %q", resp.Model)
	}
	if resp.Usage.InputTokens != 1 || resp.Usage.OutputTokens != 1 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestMessagesStreaming(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(strings.Join([]string{
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"}}]}",
			"",
			"data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}",
			"",
			"data: [DONE]",
			"",
		}, "\n")))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(
		`{"model":"m","max_tokens":10,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`))
	h.Routes().ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	out := rr.Body.String()
	for _, want := range []string{"event: message_start", "\"text\":\"Hi\"", "\"stop_reason\":\"end_turn\"", "event: message_stop"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in stream: %s", want, out)
		}
	}
}

func TestMessagesUpstreamNonSuccess(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(
		`{"model":"m","max_tokens":10,"messages":[{"role":"user","content":"Hi"}]}`))
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
	out := rr.Body.String()
	if !strings.Contains(out, "429") || !strings.Contains(out, "rate limited") {
		t.Fatalf("error must carry upstream status and body: %s", out)
	}
}

func TestMessagesUpstreamUnreachableStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore
	h := NewHandler(provider.Upstream{BaseURL: srv.URL}, metrics.New(), time.Second)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(
		`{"model":"m","max_tokens":10,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`))
	h.Routes().ServeHTTP(rr, req)

	out := rr.Body.String()
	if !strings.Contains(out, "event: error") || !strings.Contains(out, "upstream unreachable") {
		t.Fatalf("expected a single error SSE event: %s", out)
	}
}

func TestMessagesBadBody(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{not json"))
	h.Routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_request_error") {
		t.Fatalf("unexpected error body: %s", rr.Body.String())
	}
}

func TestCountTokens(t *testing.T) {
	h, _ := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("count_tokens must not hit the backend")
	})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages/count_tokens", strings.NewReader(
		`{"model":"m","messages":[{"role":"user","content":"Hello"}]}`))
	h.Routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp proto.CountTokensResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.InputTokens != 1 {
		t.Fatalf("expected 1 input token for \"Hello\", got %d", resp.InputTokens)
	}
}
