// Package openai issues translated requests to an OpenAI-compatible
// backend. Transport concerns only; translation lives elsewhere.
package openai

import (
	"bytes"
	"context"
	"net/http"
	"strings"
)

type Upstream struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
}

// DoChatCompletions posts body to the backend's chat-completions endpoint.
// The caller's context governs cancellation: when the client goes away the
// upstream read is aborted with it.
func DoChatCompletions(ctx context.Context, up Upstream, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, buildURL(up.BaseURL, "/v1/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(up.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(up.APIKey))
	}
	for k, v := range up.Headers {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		req.Header.Set(k, v)
	}
	client := &http.Client{}
	return client.Do(req)
}

func buildURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/v1") {
		return base + strings.TrimPrefix(path, "/v1")
	}
	return base + path
}
