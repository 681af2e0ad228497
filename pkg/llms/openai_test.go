package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/stream"
)

func newOpenAITest(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(Config{APIKey: "test-key", BaseURL: srv.URL, MaxRetries: 1})
}

func TestOpenAIPerform(t *testing.T) {
	var gotAuth string
	var gotBody openaiRequest

	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "Hi!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3}
		}`))
	})

	resp, err := adapter.Perform(context.Background(), &chat.Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{chat.NewUserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Content != "hello" {
		t.Errorf("wire messages = %+v", gotBody.Messages)
	}
	if resp.Text() != "Hi!" {
		t.Errorf("text = %q", resp.Text())
	}
	if resp.StopReason != chat.StopReasonEndTurn {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestOpenAIPerformToolCalls(t *testing.T) {
	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-2",
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_weather", "arguments": "{\"location\":\"SF\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	})

	resp, err := adapter.Perform(context.Background(), &chat.Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	uses := resp.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("tool uses = %d", len(uses))
	}
	if uses[0].ID != "call_1" || uses[0].Name != "get_weather" || uses[0].Arguments != `{"location":"SF"}` {
		t.Errorf("tool use = %+v", uses[0])
	}
	if resp.StopReason != chat.StopReasonToolUse {
		t.Errorf("stop reason = %q", resp.StopReason)
	}
}

func TestOpenAIToolResultsExpandToToolMessages(t *testing.T) {
	var gotBody openaiRequest
	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	})

	_, err := adapter.Perform(context.Background(), &chat.Request{
		Model: "gpt-4o",
		Messages: []chat.Message{
			chat.NewUserMessage("weather?"),
			chat.NewToolRoundMessage(
				[]chat.Block{
					chat.ToolUseBlock("call_1", "get_weather", `{"location":"SF"}`),
					chat.ToolUseBlock("call_2", "get_temp", `{"location":"SF"}`),
				},
				[]chat.Block{
					chat.ToolResultBlock("call_1", "sunny", false),
					chat.ToolResultBlock("call_2", "72F", false),
				},
			),
		},
	})
	if err != nil {
		t.Fatalf("Perform: %v", err)
	}

	// One contract tool message expands to the assistant tool_calls turn
	// plus one wire message per result.
	if len(gotBody.Messages) != 4 {
		t.Fatalf("wire messages = %d, want 4", len(gotBody.Messages))
	}
	call := gotBody.Messages[1]
	if call.Role != "assistant" || len(call.ToolCalls) != 2 {
		t.Fatalf("tool call message = %+v", call)
	}
	if call.ToolCalls[0].ID != "call_1" || call.ToolCalls[0].Function.Name != "get_weather" {
		t.Errorf("first tool call = %+v", call.ToolCalls[0])
	}
	if gotBody.Messages[2].Role != "tool" || gotBody.Messages[2].ToolCallID != "call_1" {
		t.Errorf("first tool message = %+v", gotBody.Messages[2])
	}
	if gotBody.Messages[3].Role != "tool" || gotBody.Messages[3].ToolCallID != "call_2" {
		t.Errorf("second tool message = %+v", gotBody.Messages[3])
	}
}

func TestOpenAIStream(t *testing.T) {
	chunks := []string{
		`{"id":"chatcmpl-3","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"chatcmpl-3","choices":[{"delta":{"content":"lo"}}]}`,
		`{"id":"chatcmpl-3","choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"chatcmpl-3","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2}}`,
		`[DONE]`,
	}

	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
	})

	ch, err := adapter.Stream(context.Background(), &chat.Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{chat.NewUserMessage("hi")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	combined, err := stream.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if combined.Text() != "Hello" {
		t.Errorf("text = %q", combined.Text())
	}
	if combined.StopReason != chat.StopReasonEndTurn {
		t.Errorf("stop reason = %q", combined.StopReason)
	}
	if combined.Usage == nil || combined.Usage.InputTokens != 4 {
		t.Errorf("usage = %+v", combined.Usage)
	}
}

func TestOpenAIStreamToolCallFragments(t *testing.T) {
	chunks := []string{
		`{"choices":[{"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","function":{"name":"get_weather","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"loc"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"SF\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	}

	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		for _, chunk := range chunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
	})

	ch, err := adapter.Stream(context.Background(), &chat.Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	combined, err := stream.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	uses := combined.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("tool uses = %d", len(uses))
	}
	if uses[0].ID != "call_9" || uses[0].Name != "get_weather" || uses[0].Arguments != `{"location":"SF"}` {
		t.Errorf("tool use = %+v", uses[0])
	}
	if combined.StopReason != chat.StopReasonToolUse {
		t.Errorf("stop reason = %q", combined.StopReason)
	}
}

func TestOpenAIStreamFinishOnToolCallChunk(t *testing.T) {
	// Some servers put finish_reason and usage on the same chunk as the
	// final tool-call fragment.
	chunks := []string{
		`{"choices":[{"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","function":{"name":"get_weather","arguments":"{}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`,
		`[DONE]`,
	}

	adapter := newOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		for _, chunk := range chunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
	})

	ch, err := adapter.Stream(context.Background(), &chat.Request{
		Model:    "gpt-4o",
		Messages: []chat.Message{chat.NewUserMessage("weather?")},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	combined, err := stream.Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if combined.StopReason != chat.StopReasonToolUse {
		t.Errorf("stop reason = %q, want tool_use", combined.StopReason)
	}
	if combined.Usage == nil || combined.Usage.InputTokens != 7 {
		t.Errorf("usage = %+v", combined.Usage)
	}
	if uses := combined.ToolUses(); len(uses) != 1 || uses[0].ID != "call_9" {
		t.Errorf("tool uses = %+v", uses)
	}
}

func TestOpenAIStopReasonMapping(t *testing.T) {
	cases := map[string]chat.StopReason{
		"stop":       chat.StopReasonEndTurn,
		"tool_calls": chat.StopReasonToolUse,
		"length":     chat.StopReasonMaxTokens,
		"":           "",
	}
	for finish, want := range cases {
		if got := openaiStopReason(finish); got != want {
			t.Errorf("openaiStopReason(%q) = %q, want %q", finish, got, want)
		}
	}
}
