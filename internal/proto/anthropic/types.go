package anthropic

import "encoding/json"

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Messages    []Message        `json:"messages"`
	System      any              `json:"system,omitempty"`
	Metadata    json.RawMessage  `json:"metadata,omitempty"`
	StopSeqs    []string         `json:"stop_sequences,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  json.RawMessage  `json:"tool_choice,omitempty"`
}

// CountTokensRequest is the body of POST /v1/messages/count_tokens.
type CountTokensRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	System   any              `json:"system,omitempty"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is the wire form of a message body: either a plain string or an
// array of content blocks. IsText reports which form was received so that
// string content can be passed through unchanged.
type Content struct {
	Text   string
	Blocks []ContentBlock

	isText bool
}

func TextContent(s string) Content {
	return Content{Text: s, isText: true}
}

func BlockContent(blocks ...ContentBlock) Content {
	return Content{Blocks: blocks}
}

func (c Content) IsText() bool { return c.isText }

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		c.isText = true
		c.Blocks = nil
		return json.Unmarshal(data, &c.Text)
	}
	c.isText = false
	c.Text = ""
	return json.Unmarshal(data, &c.Blocks)
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.isText {
		return json.Marshal(c.Text)
	}
	if c.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Blocks)
}

// Content block discriminators.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one discriminated unit of message payload. Type selects
// which of the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   *bool           `json:"is_error,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Stop reasons visible to clients.
const (
	StopEndTurn   = "end_turn"
	StopMaxTokens = "max_tokens"
	StopToolUse   = "tool_use"
)

type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// SystemText flattens the system field, which may arrive as a plain string
// or as a list of text blocks, into one prompt string.
func SystemText(system any) string {
	switch v := system.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		out := ""
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if m["type"] == BlockText {
				if t, ok := m["text"].(string); ok {
					out += t
				}
			}
		}
		return out
	default:
		j, _ := json.Marshal(v)
		return string(j)
	}
}
