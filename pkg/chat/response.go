package chat

import "strings"

// StopReason explains why the backend stopped generating.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage carries token counters. During streaming it is typically only
// reported on the terminal delta.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Delta is one partial update of a streamed response. Index addresses the
// content block the fragment belongs to; an index at the current block count
// appends a new block. Fragments of tool arguments arrive as raw string
// pieces in PartialArgs.
type Delta struct {
	Index       *int   `json:"index,omitempty"`
	Text        string `json:"text,omitempty"`
	ToolID      string `json:"tool_id,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	PartialArgs string `json:"partial_args,omitempty"`
}

// Response is either a complete message response (Delta == nil) or, when
// streaming, a partial update (Delta != nil). Terminal deltas carry a
// StopReason; Usage takes the latest non-nil value across a stream.
type Response struct {
	ID           string     `json:"id,omitempty"`
	Model        string     `json:"model,omitempty"`
	Role         Role       `json:"role,omitempty"`
	Blocks       []Block    `json:"blocks,omitempty"`
	StopReason   StopReason `json:"stop_reason,omitempty"`
	StopSequence string     `json:"stop_sequence,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
	Delta        *Delta     `json:"delta,omitempty"`

	// Err is set on a stream element when the stream fails. It is always
	// the last element before the channel closes and never crosses the
	// wire.
	Err error `json:"-"`
}

// ErrorResponse wraps a stream failure as the terminal stream element.
func ErrorResponse(err error) *Response {
	return &Response{Err: err}
}

// IsDelta reports whether the response is a streamed partial update.
func (r *Response) IsDelta() bool {
	return r.Delta != nil
}

// Text concatenates the response's text blocks.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Blocks {
		if block.Type == BlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUses returns the response's tool invocation blocks in order.
func (r *Response) ToolUses() []Block {
	var uses []Block
	for _, block := range r.Blocks {
		if block.Type == BlockTypeToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

// Message converts a complete response into an assistant message suitable
// for appending to the conversation.
func (r *Response) Message() Message {
	blocks := make([]Block, len(r.Blocks))
	copy(blocks, r.Blocks)
	role := r.Role
	if role == "" {
		role = RoleAssistant
	}
	return Message{Role: role, Blocks: blocks}
}
