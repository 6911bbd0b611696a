package streamconv

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"claude-gateway/internal/proto/openai"
	"claude-gateway/internal/toolid"
)

// Options carries the per-request inputs of a stream conversion.
type Options struct {
	// Model echoed back to the client; the name it requested, not the
	// name the backend served.
	Model string
	// InputTokens is the structural pre-count of the translated request.
	InputTokens int
	// IDs is the request's tool-call ID mapping, shared with the request
	// translation that preceded the stream.
	IDs *toolid.Mapping
	// OnEvent, when set, observes the name of every emitted event.
	OnEvent func(name string)
}

// OpenAIToAnthropic reads the upstream SSE stream from r and writes the
// converted source-protocol stream to w, flushing after every frame.
// Malformed data frames are skipped; a transport failure mid-stream emits
// one error event and terminates the stream. A clean EOF without a
// terminal chunk closes the message out with whatever was accumulated.
func OpenAIToAnthropic(w http.ResponseWriter, r io.Reader, opts Options) error {
	flusher, _ := w.(http.Flusher)
	conv := New(opts.Model, opts.InputTokens, opts.IDs)

	emit := func(events []Event) error {
		for _, ev := range events {
			if _, err := w.Write(ev.Frame()); err != nil {
				return err
			}
			if opts.OnEvent != nil {
				opts.OnEvent(ev.Name)
			}
		}
		if len(events) > 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	br := bufio.NewReader(r)
	for {
		block, err := readSSEBlock(br)
		if err != nil && err != io.EOF {
			// Bytes stopped mid-stream; what went out stands.
			_ = emit(conv.Fail(err))
			return err
		}

		data := extractSSEData(block)
		if data != "" && data != "[DONE]" {
			var chunk openai.StreamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				log.WithError(jsonErr).Warn("skipping malformed stream chunk")
			} else if werr := emit(conv.Push(chunk)); werr != nil {
				return werr
			}
		}

		if err == io.EOF || data == "[DONE]" {
			break
		}
	}
	return emit(conv.Finish())
}

func marshalEvent(data any) []byte {
	b, err := json.Marshal(data)
	if err != nil {
		log.WithError(err).Error("marshal stream event")
		return []byte("{}")
	}
	return b
}

// readSSEBlock reads up to the blank line separating SSE frames.
func readSSEBlock(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				b.WriteString(line)
				return b.String(), io.EOF
			}
			return "", err
		}
		if line == "\n" || line == "\r\n" {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

// extractSSEData joins the data lines of one SSE block.
func extractSSEData(block string) string {
	var dataLines []string
	for _, ln := range strings.Split(block, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.HasPrefix(ln, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(ln, "data:")))
		}
	}
	return strings.TrimSpace(strings.Join(dataLines, "\n"))
}
