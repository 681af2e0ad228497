package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/dispatch"
	"github.com/switchboardai/switchboard/pkg/httpclient"
)

const openaiBaseURL = "https://api.openai.com/v1"

// OpenAI adapts the chat contract to the OpenAI chat completions API. It
// also serves OpenAI-compatible servers when pointed at them via BaseURL.
type OpenAI struct {
	cfg    Config
	client *httpclient.Client
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(cfg Config) *OpenAI {
	cfg.setDefaults(openaiBaseURL, 4096, 0.7)
	return &OpenAI{
		cfg:    cfg,
		client: cfg.newClient(httpclient.ParseOpenAIHeaders),
	}
}

// Match reports whether the request targets an OpenAI model.
func (o *OpenAI) Match(req *chat.Request) bool {
	return ModelPrefix("gpt-", "o1", "o3", "o4")(req)
}

type openaiFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  chat.Schema `json:"parameters"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiRequest struct {
	Model         string          `json:"model"`
	Messages      []openaiMessage `json:"messages"`
	Tools         []openaiTool    `json:"tools,omitempty"`
	MaxTokens     int             `json:"max_completion_tokens,omitempty"`
	Temperature   float64         `json:"temperature,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}

type openaiChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string           `json:"role,omitempty"`
			Content   string           `json:"content,omitempty"`
			ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openaiUsage `json:"usage"`
}

// Perform sends a non-streaming chat completion request.
func (o *OpenAI) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	httpResp, err := o.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var wire openaiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return nil, &chat.ProviderError{Status: httpResp.StatusCode, Message: "no choices in response"}
	}

	choice := wire.Choices[0]
	resp := &chat.Response{
		ID:         wire.ID,
		Model:      wire.Model,
		Role:       chat.RoleAssistant,
		StopReason: openaiStopReason(choice.FinishReason),
	}
	if wire.Usage != nil {
		resp.Usage = &chat.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
		}
	}
	if choice.Message.Content != "" {
		resp.Blocks = append(resp.Blocks, chat.TextBlock(choice.Message.Content))
	}
	for _, call := range choice.Message.ToolCalls {
		resp.Blocks = append(resp.Blocks, chat.ToolUseBlock(call.ID, call.Function.Name, call.Function.Arguments))
	}
	return resp, nil
}

// Stream sends a streaming request and translates chunked tool-call and
// content fragments into indexed deltas. OpenAI indexes tool calls
// independently of content, so block positions are assigned in arrival
// order: content first if any, then tool calls as they appear.
func (o *OpenAI) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	httpResp, err := o.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan *chat.Response, 100)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()
		if err := o.readStream(ctx, httpResp, out); err != nil {
			select {
			case out <- chat.ErrorResponse(err):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (o *OpenAI) post(ctx context.Context, req *chat.Request, stream bool) (*http.Response, error) {
	wire := o.buildRequest(req, stream)
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(httpReq)
	return checkResponse(resp, err)
}

func (o *OpenAI) buildRequest(req *chat.Request, stream bool) *openaiRequest {
	wire := &openaiRequest{
		Model:       req.Model,
		MaxTokens:   o.cfg.maxTokens(req),
		Temperature: o.cfg.temperature(req),
		Stream:      stream,
	}
	if stream {
		wire.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleTool:
			// The API wants the assistant tool_calls turn first, then one
			// wire message per tool result. Echoed tool_use blocks supply
			// the assistant turn.
			if uses := msg.ToolUses(); len(uses) > 0 {
				call := openaiMessage{Role: "assistant"}
				for i, use := range uses {
					tc := openaiToolCall{Index: i, ID: use.ID, Type: "function"}
					tc.Function.Name = use.Name
					tc.Function.Arguments = use.Arguments
					call.ToolCalls = append(call.ToolCalls, tc)
				}
				wire.Messages = append(wire.Messages, call)
			}
			for _, block := range msg.ToolResults() {
				wire.Messages = append(wire.Messages, openaiMessage{
					Role:       "tool",
					Content:    block.Content,
					ToolCallID: block.ToolCallID,
				})
			}

		case chat.RoleAssistant:
			out := openaiMessage{Role: "assistant", Content: msg.Text()}
			for i, use := range msg.ToolUses() {
				call := openaiToolCall{Index: i, ID: use.ID, Type: "function"}
				call.Function.Name = use.Name
				call.Function.Arguments = use.Arguments
				out.ToolCalls = append(out.ToolCalls, call)
			}
			wire.Messages = append(wire.Messages, out)

		default:
			wire.Messages = append(wire.Messages, openaiMessage{
				Role:    string(msg.Role),
				Content: msg.Text(),
			})
		}
	}

	for _, tool := range req.Tools {
		wire.Tools = append(wire.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Schema,
			},
		})
	}
	return wire
}

func (o *OpenAI) readStream(ctx context.Context, httpResp *http.Response, out chan<- *chat.Response) error {
	var streamErr error

	// Wire tool-call indices to contract block positions.
	blockIndex := map[string]int{}
	nextBlock := 0
	position := func(key string) int {
		if i, ok := blockIndex[key]; ok {
			return i
		}
		blockIndex[key] = nextBlock
		nextBlock++
		return blockIndex[key]
	}

	send := func(resp *chat.Response) bool {
		select {
		case out <- resp:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := scanSSE(httpResp.Body, func(data string) bool {
		if data == "[DONE]" {
			return false
		}

		var chunk openaiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			streamErr = &chat.StreamError{Chunk: data, Err: err}
			return false
		}

		resp := &chat.Response{ID: chunk.ID, Model: chunk.Model, Delta: &chat.Delta{}}
		if chunk.Usage != nil {
			resp.Usage = &chat.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			// Usage-only terminal chunk.
			return send(resp)
		}

		choice := chunk.Choices[0]
		if choice.Delta.Role != "" {
			resp.Role = chat.Role(choice.Delta.Role)
		}
		if choice.FinishReason != "" {
			resp.StopReason = openaiStopReason(choice.FinishReason)
		}

		if choice.Delta.Content != "" {
			index := position("text")
			resp.Delta.Index = &index
			resp.Delta.Text = choice.Delta.Content
			return send(resp)
		}

		for _, call := range choice.Delta.ToolCalls {
			index := position(fmt.Sprintf("tool:%d", call.Index))
			if !send(&chat.Response{Delta: &chat.Delta{
				Index:       &index,
				ToolID:      call.ID,
				ToolName:    call.Function.Name,
				PartialArgs: call.Function.Arguments,
			}}) {
				return false
			}
		}
		if len(choice.Delta.ToolCalls) > 0 && resp.StopReason == "" && resp.Usage == nil {
			// Nothing left on this chunk beyond the tool fragments.
			return true
		}
		return send(resp)
	})
	if streamErr != nil {
		return streamErr
	}
	return err
}

func openaiStopReason(finish string) chat.StopReason {
	switch finish {
	case "stop":
		return chat.StopReasonEndTurn
	case "tool_calls":
		return chat.StopReasonToolUse
	case "length":
		return chat.StopReasonMaxTokens
	case "":
		return ""
	default:
		return chat.StopReasonEndTurn
	}
}

var _ dispatch.Adapter = (*OpenAI)(nil)
