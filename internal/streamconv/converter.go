// Package streamconv turns an OpenAI chat-completion delta stream into the
// Anthropic SSE event stream clients expect. One Converter per request
// stream; it is driven single-threaded and never reused.
package streamconv

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"claude-gateway/internal/convert"
	"claude-gateway/internal/proto/anthropic"
	"claude-gateway/internal/proto/openai"
	"claude-gateway/internal/tokencount"
	"claude-gateway/internal/toolid"
)

type state int

const (
	stateIdle state = iota
	stateOpen
	stateClosing
	stateClosed
)

// Event is a source-protocol streaming event ready for SSE framing.
type Event struct {
	Name string
	Data any
}

// Frame serializes the event as one SSE frame.
func (e Event) Frame() []byte {
	b := marshalEvent(e.Data)
	frame := make([]byte, 0, len(e.Name)+len(b)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, e.Name...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, b...)
	frame = append(frame, "\n\n"...)
	return frame
}

// toolAccumulator assembles one tool call whose arguments arrive spread
// across many fragments. The buffer is append-only until the block closes.
type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// Converter rebuilds Anthropic streaming events from OpenAI delta chunks.
// Per-request state only: fresh accumulators and ID mapping every stream.
type Converter struct {
	state       state
	model       string
	messageID   string
	inputTokens int
	ids         *toolid.Mapping

	nextIndex    int
	openIndex    int // source-protocol index of the open block, -1 when none
	openType     string
	toolIndex    map[int]int // upstream tool_call index -> source block index
	tools        map[int]*toolAccumulator
	outputTokens int
	finalUsage   *openai.Usage
	finishReason *string
}

// New builds a converter for one stream. inputTokens is the structural
// pre-count of the translated request; the backend has not reported usage
// yet when message_start must go out.
func New(model string, inputTokens int, ids *toolid.Mapping) *Converter {
	if ids == nil {
		ids = toolid.NewMapping()
	}
	return &Converter{
		model:       model,
		messageID:   "msg_" + uuid.NewString(),
		inputTokens: inputTokens,
		ids:         ids,
		openIndex:   -1,
		toolIndex:   map[int]int{},
		tools:       map[int]*toolAccumulator{},
	}
}

// Push consumes one upstream chunk and returns the events it produces, in
// emission order. After the terminal chunk only usage frames are consumed.
func (c *Converter) Push(chunk openai.StreamChunk) []Event {
	if c.state == stateClosed {
		return nil
	}
	if chunk.Usage != nil {
		c.finalUsage = chunk.Usage
	}
	if c.state == stateClosing {
		return nil
	}

	var events []Event
	if c.state == stateIdle {
		events = append(events, c.start())
	}
	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		events = append(events, c.pushText(choice.Delta.Content)...)
	}
	for _, tc := range choice.Delta.ToolCalls {
		events = append(events, c.pushToolCall(tc)...)
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		c.finishReason = choice.FinishReason
		c.state = stateClosing
	}
	return events
}

// Finish closes out the stream: any still-open block is flushed as a
// closed block, then message_delta and message_stop terminate the
// sequence. A clean upstream EOF without a finish reason lands here too
// and closes with whatever was accumulated. Idempotent once closed.
func (c *Converter) Finish() []Event {
	if c.state == stateClosed {
		return nil
	}

	var events []Event
	if c.state == stateIdle {
		events = append(events, c.start())
	}
	events = append(events, c.closeOpenBlock()...)

	outputTokens := c.outputTokens
	if c.finalUsage != nil {
		outputTokens = c.finalUsage.CompletionTokens
	}
	events = append(events,
		Event{anthropic.EventMessageDelta, anthropic.MessageDeltaEvent{
			Type:  anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{StopReason: convert.StopReason(c.finishReason)},
			Usage: anthropic.MessageDeltaUsage{OutputTokens: outputTokens},
		}},
		Event{anthropic.EventMessageStop, anthropic.MessageStopEvent{Type: anthropic.EventMessageStop}},
	)
	c.state = stateClosed
	return events
}

// Fail terminates the stream after a transport-level failure. Content
// already emitted stands; SSE cannot un-send. The single error event is
// the terminator, no message_stop follows.
func (c *Converter) Fail(err error) []Event {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return []Event{{anthropic.EventError, anthropic.ErrorEvent{
		Type: anthropic.EventError,
		Error: anthropic.ErrorDetail{
			Type:    "api_error",
			Message: err.Error(),
		},
	}}}
}

func (c *Converter) start() Event {
	c.state = stateOpen
	return Event{anthropic.EventMessageStart, anthropic.MessageStartEvent{
		Type: anthropic.EventMessageStart,
		Message: anthropic.MessagesResponse{
			ID:      c.messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   c.model,
			Content: []anthropic.ContentBlock{},
			Usage:   anthropic.Usage{InputTokens: c.inputTokens},
		},
	}}
}

func (c *Converter) pushText(text string) []Event {
	var events []Event
	if c.openType != anthropic.BlockText || c.openIndex < 0 {
		events = append(events, c.closeOpenBlock()...)
		events = append(events, c.openBlock(anthropic.BlockText, anthropic.ContentBlock{
			Type: anthropic.BlockText,
			Text: "",
		}))
	}
	c.outputTokens += tokencount.Text(text)
	events = append(events, Event{anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
		Type:  anthropic.EventContentBlockDelta,
		Index: c.openIndex,
		Delta: anthropic.BlockDelta{Type: anthropic.DeltaText, Text: text},
	}})
	return events
}

func (c *Converter) pushToolCall(tc openai.ToolCallDelta) []Event {
	var events []Event
	blockIndex, known := c.toolIndex[tc.Index]
	if !known {
		events = append(events, c.closeOpenBlock()...)
		acc := &toolAccumulator{id: c.ids.Restore(tc.ID), name: tc.Function.Name}
		if acc.id == "" {
			acc.id = "toolu_" + toolid.Shorten(c.messageID+strconv.Itoa(tc.Index))
		}
		blockIndex = c.nextIndex
		c.toolIndex[tc.Index] = blockIndex
		c.tools[blockIndex] = acc
		events = append(events, c.openBlock(anthropic.BlockToolUse, anthropic.ContentBlock{
			Type:  anthropic.BlockToolUse,
			ID:    acc.id,
			Name:  acc.name,
			Input: []byte(`{}`),
		}))
	} else if blockIndex != c.openIndex {
		// A fragment for an earlier call after the stream moved on:
		// reopen is not allowed, drop the fragment.
		log.WithField("tool_index", tc.Index).Warn("tool call fragment after block closed")
		return events
	}

	if args := tc.Function.Arguments; args != "" {
		c.tools[blockIndex].args.WriteString(args)
		events = append(events, Event{anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
			Type:  anthropic.EventContentBlockDelta,
			Index: blockIndex,
			Delta: anthropic.BlockDelta{Type: anthropic.DeltaInputJSON, PartialJSON: args},
		}})
	}
	return events
}

func (c *Converter) openBlock(blockType string, block anthropic.ContentBlock) Event {
	c.openIndex = c.nextIndex
	c.openType = blockType
	c.nextIndex++
	return Event{anthropic.EventContentBlockStart, anthropic.ContentBlockStartEvent{
		Type:         anthropic.EventContentBlockStart,
		Index:        c.openIndex,
		ContentBlock: block,
	}}
}

// closeOpenBlock emits the stop for the current block, finalizing its
// accumulator if it was a tool call. Starting a new index implies closing
// the previous one; upstream never signals it explicitly.
func (c *Converter) closeOpenBlock() []Event {
	if c.openIndex < 0 {
		return nil
	}
	index := c.openIndex
	if acc, ok := c.tools[index]; ok {
		args := acc.args.String()
		if args != "" && !gjson.Valid(args) {
			log.WithFields(log.Fields{
				"tool": acc.name,
				"id":   acc.id,
			}).Warn("tool call closed with incomplete argument JSON")
		}
		c.outputTokens += tokencount.Text(args)
	}
	c.openIndex = -1
	c.openType = ""
	return []Event{{anthropic.EventContentBlockStop, anthropic.ContentBlockStopEvent{
		Type:  anthropic.EventContentBlockStop,
		Index: index,
	}}}
}
