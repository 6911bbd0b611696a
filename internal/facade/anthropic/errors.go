package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"

	proto "claude-gateway/internal/proto/anthropic"
)

const (
	errInvalidRequest = "invalid_request_error"
	errAPI            = "api_error"
)

func writeError(w http.ResponseWriter, status int, typ string, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(proto.ErrorEvent{
		Type: "error",
		Error: proto.ErrorDetail{
			Type:    typ,
			Message: msg,
		},
	})
}

func upstreamErrorMessage(status int, body []byte) string {
	return fmt.Sprintf("upstream returned status %d: %s", status, string(body))
}
