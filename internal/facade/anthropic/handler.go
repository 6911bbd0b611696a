// Package anthropic serves the Anthropic-shaped client surface and drives
// request translation, upstream calls, and response or stream conversion.
package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"claude-gateway/internal/convert"
	"claude-gateway/internal/metrics"
	proto "claude-gateway/internal/proto/anthropic"
	openaiproto "claude-gateway/internal/proto/openai"
	provider "claude-gateway/internal/providers/openai"
	"claude-gateway/internal/streamconv"
	"claude-gateway/internal/tokencount"
	"claude-gateway/internal/toolid"
)

type Handler struct {
	upstream provider.Upstream
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewHandler builds the facade. timeout bounds non-streaming upstream
// calls only; a live stream is governed by client disconnect instead.
func NewHandler(up provider.Upstream, m *metrics.Metrics, timeout time.Duration) *Handler {
	return &Handler{upstream: up, metrics: m, timeout: timeout}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/messages", h.handleMessages)
	r.Post("/messages/count_tokens", h.handleCountTokens)
	return r
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	status := http.StatusOK
	defer func() {
		h.metrics.ObserveRequest("anthropic", "openai", status, time.Since(started))
	}()

	var req proto.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		writeError(w, status, errInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	ids := toolid.NewMapping()
	inputTokens := tokencount.Request(req.Messages, req.System, req.Tools)

	body, err := json.Marshal(convert.Request(req, ids))
	if err != nil {
		status = http.StatusInternalServerError
		writeError(w, status, errAPI, "encode upstream request: "+err.Error())
		return
	}

	ctx := r.Context()
	if !req.Stream && h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := provider.DoChatCompletions(ctx, h.upstream, body)
	if err != nil {
		log.WithError(err).Warn("upstream unreachable")
		status = http.StatusBadGateway
		h.writeUnreachable(w, req, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		status = resp.StatusCode
		h.writeNonSuccess(w, req, resp.StatusCode, upstreamBody)
		return
	}

	if req.Stream {
		h.streamResponse(w, req, resp.Body, inputTokens, ids)
		return
	}

	var oresp openaiproto.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
		status = http.StatusBadGateway
		writeError(w, status, errAPI, "decode upstream response: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, convert.Response(oresp, req.Model, ids))
}

func (h *Handler) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req proto.CountTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proto.CountTokensResponse{
		InputTokens: tokencount.Request(req.Messages, req.System, req.Tools),
	})
}

func (h *Handler) streamResponse(w http.ResponseWriter, req proto.MessagesRequest, body io.Reader, inputTokens int, ids *toolid.Mapping) {
	setSSEHeaders(w)
	err := streamconv.OpenAIToAnthropic(w, body, streamconv.Options{
		Model:       req.Model,
		InputTokens: inputTokens,
		IDs:         ids,
		OnEvent:     h.metrics.ObserveStreamEvent,
	})
	if err != nil {
		log.WithError(err).WithField("model", req.Model).Warn("stream conversion aborted")
	}
}

// writeUnreachable reports a network failure that happened before any
// upstream bytes arrived. A streaming client still gets a valid,
// terminated SSE channel: a single error event.
func (h *Handler) writeUnreachable(w http.ResponseWriter, req proto.MessagesRequest, err error) {
	if !req.Stream {
		writeError(w, http.StatusBadGateway, errAPI, "upstream unreachable: "+err.Error())
		return
	}
	setSSEHeaders(w)
	writeErrorFrame(w, "upstream unreachable: "+err.Error())
}

func (h *Handler) writeNonSuccess(w http.ResponseWriter, req proto.MessagesRequest, upstreamStatus int, upstreamBody []byte) {
	msg := upstreamErrorMessage(upstreamStatus, upstreamBody)
	if !req.Stream {
		writeError(w, upstreamStatus, errAPI, msg)
		return
	}
	setSSEHeaders(w)
	writeErrorFrame(w, msg)
}

func writeErrorFrame(w http.ResponseWriter, msg string) {
	ev := streamconv.Event{Name: proto.EventError, Data: proto.ErrorEvent{
		Type:  proto.EventError,
		Error: proto.ErrorDetail{Type: errAPI, Message: msg},
	}}
	_, _ = w.Write(ev.Frame())
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
