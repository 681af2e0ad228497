package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/dispatch"
	"github.com/switchboardai/switchboard/pkg/httpclient"
)

const ollamaBaseURL = "http://localhost:11434"

// Ollama adapts the chat contract to a local Ollama server's /api/chat
// endpoint. Responses stream as newline-delimited JSON rather than SSE.
type Ollama struct {
	cfg    Config
	client *httpclient.Client
}

// NewOllama creates an Ollama adapter.
func NewOllama(cfg Config) *Ollama {
	cfg.setDefaults(ollamaBaseURL, 4096, 0.7)
	return &Ollama{cfg: cfg, client: cfg.newClient(nil)}
}

// Match reports whether the request targets a model commonly served by
// Ollama. Registered last, it usually acts as the local-model fallback.
func (o *Ollama) Match(req *chat.Request) bool {
	return ModelPrefix("llama", "qwen", "mistral", "gemma", "phi", "deepseek")(req)
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []openaiTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// Perform sends a non-streaming chat request.
func (o *Ollama) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	httpResp, err := o.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var wire ollamaResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	return o.toResponse(&wire), nil
}

// Stream sends a streaming chat request and translates NDJSON lines into
// deltas. Ollama does not stream tool calls incrementally; they arrive whole
// on the final line.
func (o *Ollama) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	httpResp, err := o.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan *chat.Response, 100)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()
		if err := o.readStream(ctx, httpResp.Body, out); err != nil {
			select {
			case out <- chat.ErrorResponse(err):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (o *Ollama) post(ctx context.Context, req *chat.Request, stream bool) (*http.Response, error) {
	wire := &ollamaRequest{
		Model:  req.Model,
		Stream: stream,
		Options: map[string]any{
			"temperature": o.cfg.temperature(req),
			"num_predict": o.cfg.maxTokens(req),
		},
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleTool:
			// Replay the assistant's tool calls before the results.
			if uses := msg.ToolUses(); len(uses) > 0 {
				call := ollamaMessage{Role: "assistant"}
				for _, use := range uses {
					var tc ollamaToolCall
					tc.Function.Name = use.Name
					if use.Arguments != "" {
						_ = json.Unmarshal([]byte(use.Arguments), &tc.Function.Arguments)
					}
					call.ToolCalls = append(call.ToolCalls, tc)
				}
				wire.Messages = append(wire.Messages, call)
			}
			for _, block := range msg.ToolResults() {
				wire.Messages = append(wire.Messages, ollamaMessage{
					Role:    "tool",
					Content: block.Content,
				})
			}
		default:
			out := ollamaMessage{Role: string(msg.Role), Content: msg.Text()}
			for _, use := range msg.ToolUses() {
				var call ollamaToolCall
				call.Function.Name = use.Name
				if use.Arguments != "" {
					// Best effort; a tool use we produced always carries
					// valid JSON arguments.
					_ = json.Unmarshal([]byte(use.Arguments), &call.Function.Arguments)
				}
				out.ToolCalls = append(out.ToolCalls, call)
			}
			wire.Messages = append(wire.Messages, out)
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

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	return checkResponse(resp, err)
}

func (o *Ollama) toResponse(wire *ollamaResponse) *chat.Response {
	resp := &chat.Response{
		Model:      wire.Model,
		Role:       chat.RoleAssistant,
		StopReason: ollamaStopReason(wire),
		Usage: &chat.Usage{
			InputTokens:  wire.PromptEvalCount,
			OutputTokens: wire.EvalCount,
		},
	}
	if wire.Message.Content != "" {
		resp.Blocks = append(resp.Blocks, chat.TextBlock(wire.Message.Content))
	}
	for _, call := range wire.Message.ToolCalls {
		args, _ := json.Marshal(call.Function.Arguments)
		// Ollama does not assign call ids; mint one so results can refer
		// back to the call.
		resp.Blocks = append(resp.Blocks, chat.ToolUseBlock(
			"call_"+uuid.NewString(), call.Function.Name, string(args)))
	}
	return resp
}

func (o *Ollama) readStream(ctx context.Context, body io.Reader, out chan<- *chat.Response) error {
	send := func(resp *chat.Response) bool {
		select {
		case out <- resp:
			return true
		case <-ctx.Done():
			return false
		}
	}

	nextIndex := 0
	decoder := json.NewDecoder(body)
	for {
		var line ollamaResponse
		if err := decoder.Decode(&line); err != nil {
			if err == io.EOF {
				return nil
			}
			return &chat.StreamError{Err: err}
		}

		if line.Message.Content != "" {
			index := 0
			nextIndex = 1
			if !send(&chat.Response{
				Model: line.Model,
				Role:  chat.RoleAssistant,
				Delta: &chat.Delta{Index: &index, Text: line.Message.Content},
			}) {
				return nil
			}
		}

		// Tool calls arrive complete, one block each.
		for _, call := range line.Message.ToolCalls {
			args, _ := json.Marshal(call.Function.Arguments)
			index := nextIndex
			nextIndex++
			if !send(&chat.Response{Delta: &chat.Delta{
				Index:       &index,
				ToolID:      "call_" + uuid.NewString(),
				ToolName:    call.Function.Name,
				PartialArgs: string(args),
			}}) {
				return nil
			}
		}

		if line.Done {
			return sendFinal(ctx, out, &chat.Response{
				StopReason: ollamaStopReason(&line),
				Usage: &chat.Usage{
					InputTokens:  line.PromptEvalCount,
					OutputTokens: line.EvalCount,
				},
				Delta: &chat.Delta{},
			})
		}
	}
}

func sendFinal(ctx context.Context, out chan<- *chat.Response, resp *chat.Response) error {
	select {
	case out <- resp:
	case <-ctx.Done():
	}
	return nil
}

func ollamaStopReason(wire *ollamaResponse) chat.StopReason {
	if !wire.Done {
		return ""
	}
	switch wire.DoneReason {
	case "length":
		return chat.StopReasonMaxTokens
	default:
		if len(wire.Message.ToolCalls) > 0 {
			return chat.StopReasonToolUse
		}
		return chat.StopReasonEndTurn
	}
}

var _ dispatch.Adapter = (*Ollama)(nil)
