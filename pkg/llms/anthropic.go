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

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Anthropic adapts the chat contract to the Anthropic Messages API.
type Anthropic struct {
	cfg    Config
	client *httpclient.Client
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(cfg Config) *Anthropic {
	cfg.setDefaults(anthropicBaseURL, 4096, 1.0)
	return &Anthropic{
		cfg:    cfg,
		client: cfg.newClient(httpclient.ParseAnthropicHeaders),
	}
}

// Match reports whether the request targets a Claude model.
func (a *Anthropic) Match(req *chat.Request) bool {
	return ModelPrefix("claude")(req)
}

type anthropicTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema chat.Schema `json:"input_schema"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    map[string]any  `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Role         string             `json:"role"`
	Content      []anthropicContent `json:"content"`
	StopReason   string             `json:"stop_reason"`
	StopSequence string             `json:"stop_sequence"`
	Usage        anthropicUsage     `json:"usage"`
}

type anthropicEvent struct {
	Type         string             `json:"type"`
	Index        int                `json:"index"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
	Error        *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}

// Perform sends a non-streaming request to the Messages API.
func (a *Anthropic) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	httpResp, err := a.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var wire anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	return a.toResponse(&wire), nil
}

// Stream sends a streaming request and translates SSE events into indexed
// deltas. Anthropic's event indices are block positions already, so they map
// straight onto delta indices.
func (a *Anthropic) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	httpResp, err := a.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan *chat.Response, 100)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()
		if err := a.readStream(ctx, httpResp, out); err != nil {
			select {
			case out <- chat.ErrorResponse(err):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (a *Anthropic) post(ctx context.Context, req *chat.Request, stream bool) (*http.Response, error) {
	wire, err := a.buildRequest(req, stream)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	return checkResponse(resp, err)
}

func (a *Anthropic) buildRequest(req *chat.Request, stream bool) (*anthropicRequest, error) {
	wire := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   a.cfg.maxTokens(req),
		Temperature: a.cfg.temperature(req),
		Stream:      stream,
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			// The Messages API takes system text as a top-level field.
			if wire.System != "" {
				wire.System += "\n\n"
			}
			wire.System += msg.Text()

		case chat.RoleTool:
			// The API rejects a tool_result without the assistant turn
			// that asked for it, so echoed tool_use blocks are replayed
			// as an assistant message before the user-role results.
			if uses := msg.ToolUses(); len(uses) > 0 {
				useContents, err := toAnthropicContents(uses)
				if err != nil {
					return nil, err
				}
				wire.Messages = append(wire.Messages, anthropicMessage{Role: "assistant", Content: useContents})
			}
			var contents []anthropicContent
			for _, block := range msg.ToolResults() {
				contents = append(contents, anthropicContent{
					Type:      "tool_result",
					ToolUseID: block.ToolCallID,
					Content:   block.Content,
					IsError:   block.IsError,
				})
			}
			wire.Messages = append(wire.Messages, anthropicMessage{Role: "user", Content: contents})

		default:
			contents, err := toAnthropicContents(msg.Blocks)
			if err != nil {
				return nil, err
			}
			wire.Messages = append(wire.Messages, anthropicMessage{
				Role:    string(msg.Role),
				Content: contents,
			})
		}
	}

	for _, tool := range req.Tools {
		wire.Tools = append(wire.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Schema,
		})
	}
	return wire, nil
}

func toAnthropicContents(blocks []chat.Block) ([]anthropicContent, error) {
	contents := make([]anthropicContent, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case chat.BlockTypeText:
			contents = append(contents, anthropicContent{Type: "text", Text: block.Text})
		case chat.BlockTypeImage:
			contents = append(contents, anthropicContent{
				Type:   "image",
				Source: map[string]any{"type": "url", "url": block.Source},
			})
		case chat.BlockTypeToolUse:
			input := json.RawMessage(block.Arguments)
			if block.Arguments == "" {
				input = json.RawMessage("{}")
			}
			contents = append(contents, anthropicContent{
				Type:  "tool_use",
				ID:    block.ID,
				Name:  block.Name,
				Input: input,
			})
		case chat.BlockTypeToolResult:
			contents = append(contents, anthropicContent{
				Type:      "tool_result",
				ToolUseID: block.ToolCallID,
				Content:   block.Content,
				IsError:   block.IsError,
			})
		default:
			return nil, fmt.Errorf("%w: unsupported block type %q", chat.ErrInvalidRequest, block.Type)
		}
	}
	return contents, nil
}

func (a *Anthropic) toResponse(wire *anthropicResponse) *chat.Response {
	resp := &chat.Response{
		ID:           wire.ID,
		Model:        wire.Model,
		Role:         chat.Role(wire.Role),
		StopReason:   chat.StopReason(wire.StopReason),
		StopSequence: wire.StopSequence,
		Usage: &chat.Usage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
		},
	}
	for _, content := range wire.Content {
		switch content.Type {
		case "text":
			resp.Blocks = append(resp.Blocks, chat.TextBlock(content.Text))
		case "tool_use":
			resp.Blocks = append(resp.Blocks, chat.ToolUseBlock(content.ID, content.Name, string(content.Input)))
		}
	}
	return resp
}

func (a *Anthropic) readStream(ctx context.Context, httpResp *http.Response, out chan<- *chat.Response) error {
	var streamErr error
	var inputTokens int

	send := func(resp *chat.Response) bool {
		select {
		case out <- resp:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := scanSSE(httpResp.Body, func(data string) bool {
		var event anthropicEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			streamErr = &chat.StreamError{Chunk: data, Err: err}
			return false
		}

		switch event.Type {
		case "error":
			message := "stream error"
			if event.Error != nil {
				message = event.Error.Message
			}
			streamErr = &chat.ProviderError{Status: httpResp.StatusCode, Message: message}
			return false

		case "message_start":
			if event.Message == nil {
				return true
			}
			inputTokens = event.Message.Usage.InputTokens
			return send(&chat.Response{
				ID:    event.Message.ID,
				Model: event.Message.Model,
				Role:  chat.Role(event.Message.Role),
				Delta: &chat.Delta{},
			})

		case "content_block_start":
			if event.ContentBlock == nil {
				return true
			}
			index := event.Index
			switch event.ContentBlock.Type {
			case "tool_use":
				return send(&chat.Response{Delta: &chat.Delta{
					Index:    &index,
					ToolID:   event.ContentBlock.ID,
					ToolName: event.ContentBlock.Name,
				}})
			case "text":
				// Open the block at its position even when it starts
				// empty, so later indices line up.
				return send(&chat.Response{Delta: &chat.Delta{
					Index: &index,
					Text:  event.ContentBlock.Text,
				}})
			}
			return true

		case "content_block_delta":
			if event.Delta == nil {
				return true
			}
			index := event.Index
			return send(&chat.Response{Delta: &chat.Delta{
				Index:       &index,
				Text:        event.Delta.Text,
				PartialArgs: event.Delta.PartialJSON,
			}})

		case "message_delta":
			resp := &chat.Response{Delta: &chat.Delta{}}
			if event.Delta != nil {
				resp.StopReason = chat.StopReason(event.Delta.StopReason)
				resp.StopSequence = event.Delta.StopSequence
			}
			if event.Usage != nil {
				resp.Usage = &chat.Usage{
					InputTokens:  inputTokens,
					OutputTokens: event.Usage.OutputTokens,
				}
			}
			return send(resp)

		case "message_stop":
			return false
		}
		return true
	})
	if streamErr != nil {
		return streamErr
	}
	return err
}

var _ dispatch.Adapter = (*Anthropic)(nil)
