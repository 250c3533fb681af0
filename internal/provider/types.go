package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageRole identifies the sender of a message in a conversation.
type MessageRole string

// MessageRole constants for conversation messages. System messages are
// only synthesised at the engine boundary and never stored in a session.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants for model completion termination.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolUse   FinishReason = "tool_use"
	FinishReasonFiltering FinishReason = "filtering"
)

// BlockKind is the type tag of a content block.
type BlockKind string

// BlockText is the only block kind whose text is user-visible.
const BlockText BlockKind = "text"

// Block is one typed part of a structured message body.
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

// Content is a message body: either plain text or a list of typed blocks.
// The zero value is empty plain text.
type Content struct {
	plain  string
	blocks []Block
	isList bool
}

// PlainText returns plain text content.
func PlainText(s string) Content { return Content{plain: s} }

// Blocks returns structured content made of the given blocks.
func Blocks(blocks ...Block) Content {
	return Content{blocks: append([]Block(nil), blocks...), isList: true}
}

// IsBlocks reports whether the content is structured.
func (c Content) IsBlocks() bool { return c.isList }

// Parts returns a copy of the blocks of structured content, or nil.
func (c Content) Parts() []Block { return append([]Block(nil), c.blocks...) }

// Text extracts the displayable text. For structured content the text of
// every text block is joined with a single space; other blocks are skipped.
func (c Content) Text() string {
	if !c.isList {
		return c.plain
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Kind == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " ")
}

// IsEmpty reports whether Text would be blank.
func (c Content) IsEmpty() bool { return strings.TrimSpace(c.Text()) == "" }

// String implements fmt.Stringer.
func (c Content) String() string { return c.Text() }

// MarshalJSON encodes plain text as a JSON string and blocks as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.isList {
		if c.blocks == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.blocks)
	}
	return json.Marshal(c.plain)
}

// UnmarshalJSON accepts a JSON string, an array of blocks, or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = PlainText(s)
		return nil
	case data[0] == '[':
		var blocks []Block
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*c = Blocks(blocks...)
		return nil
	default:
		return fmt.Errorf("provider: content must be a string or an array of blocks")
	}
}

// LLMMessage represents a single message in a conversation.
type LLMMessage struct {
	Role      MessageRole `json:"role"`
	Content   Content     `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	ToolID    string      `json:"tool_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes a tool the model may invoke.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// CompletionRequest is the input to a Provider.Complete call.
type CompletionRequest struct {
	Messages    []LLMMessage     `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// CompletionResponse is the output of a Provider.Complete call. Exactly one
// of a non-empty ToolCalls or a final answer in Content is expected.
type CompletionResponse struct {
	Content      Content      `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
