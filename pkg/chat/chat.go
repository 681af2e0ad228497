// Package chat defines the provider-agnostic request/response contract that
// every backend adapter implements: messages, content blocks, tools, requests,
// and complete or streamed responses.
package chat

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the content block variants.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeImage      BlockType = "image"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// Block is one typed unit of content within a message or response.
// It is a tagged union: Type selects which fields are meaningful.
// Blocks keep a stable position (index) within their parent slice.
type Block struct {
	Type BlockType `json:"type"`

	// Text block
	Text string `json:"text,omitempty"`

	// Image block
	Source string `json:"source,omitempty"`

	// ToolUse block. Arguments accumulates as a raw string during
	// streaming and is only parsed once the block is complete.
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// ToolResult block
	ToolCallID string `json:"tool_call_id,omitempty"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockTypeText, Text: text}
}

// ImageBlock creates an image content block from a URL or data URI.
func ImageBlock(source string) Block {
	return Block{Type: BlockTypeImage, Source: source}
}

// ToolUseBlock creates a tool invocation block.
func ToolUseBlock(id, name, arguments string) Block {
	return Block{Type: BlockTypeToolUse, ID: id, Name: name, Arguments: arguments}
}

// ToolResultBlock creates a tool result block referencing a prior tool use.
func ToolResultBlock(toolCallID, content string, isError bool) Block {
	return Block{Type: BlockTypeToolResult, ToolCallID: toolCallID, Content: content, IsError: isError}
}

// Message is one turn of a conversation. Messages are immutable once
// constructed; conversations are ordered slices owned by the caller.
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"blocks"`
}

// NewMessage creates a message with the given blocks.
func NewMessage(role Role, blocks ...Block) Message {
	return Message{Role: role, Blocks: blocks}
}

// NewSystemMessage creates a single-text-block system message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextBlock(text))
}

// NewUserMessage creates a single-text-block user message.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextBlock(text))
}

// NewAssistantMessage creates a single-text-block assistant message.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextBlock(text))
}

// NewToolResultMessage bundles tool result blocks into one tool-role message.
// How the role maps onto the wire (tool vs user) is the adapter's concern.
func NewToolResultMessage(results ...Block) Message {
	return NewMessage(RoleTool, results...)
}

// NewToolRoundMessage bundles one complete tool round into a single
// tool-role message: the tool_use blocks the model emitted followed by
// their matching tool_result blocks. Providers require the assistant's
// tool calls on the wire before the results, so adapters rebuild that
// assistant turn from the echoed tool_use blocks.
func NewToolRoundMessage(uses, results []Block) Message {
	blocks := make([]Block, 0, len(uses)+len(results))
	blocks = append(blocks, uses...)
	blocks = append(blocks, results...)
	return NewMessage(RoleTool, blocks...)
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var b strings.Builder
	for _, block := range m.Blocks {
		if block.Type == BlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUses returns the message's tool invocation blocks in order.
func (m Message) ToolUses() []Block {
	var uses []Block
	for _, block := range m.Blocks {
		if block.Type == BlockTypeToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// ToolResults returns the message's tool result blocks in order.
func (m Message) ToolResults() []Block {
	var results []Block
	for _, block := range m.Blocks {
		if block.Type == BlockTypeToolResult {
			results = append(results, block)
		}
	}
	return results
}
