package chat

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestMessage_Text(t *testing.T) {
	msg := NewMessage(RoleAssistant,
		TextBlock("Hello, "),
		ToolUseBlock("call_1", "search", `{"q":"go"}`),
		TextBlock("world!"),
	)

	if got := msg.Text(); got != "Hello, world!" {
		t.Errorf("Text() = %q, want %q", got, "Hello, world!")
	}
}

func TestMessage_ToolUses(t *testing.T) {
	msg := NewMessage(RoleAssistant,
		TextBlock("Let me check."),
		ToolUseBlock("call_1", "search", `{"q":"go"}`),
		ToolUseBlock("call_2", "fetch", `{"url":"x"}`),
	)

	uses := msg.ToolUses()
	if len(uses) != 2 {
		t.Fatalf("ToolUses() returned %d blocks, want 2", len(uses))
	}
	if uses[0].ID != "call_1" || uses[1].ID != "call_2" {
		t.Errorf("ToolUses() preserved wrong order: %v", uses)
	}
}

func TestMessage_ToolResults(t *testing.T) {
	msg := NewToolResultMessage(
		ToolResultBlock("call_1", "sunny", false),
		ToolResultBlock("call_2", "boom", true),
	)

	if msg.Role != RoleTool {
		t.Errorf("NewToolResultMessage role = %v, want %v", msg.Role, RoleTool)
	}

	results := msg.ToolResults()
	if len(results) != 2 {
		t.Fatalf("ToolResults() returned %d blocks, want 2", len(results))
	}
	if !results[1].IsError {
		t.Error("expected second result to carry is_error")
	}
}

func TestMessage_ToolRound(t *testing.T) {
	msg := NewToolRoundMessage(
		[]Block{ToolUseBlock("call_1", "get_weather", `{"location":"SF"}`)},
		[]Block{ToolResultBlock("call_1", "sunny", false)},
	)

	if msg.Role != RoleTool {
		t.Errorf("NewToolRoundMessage role = %v, want %v", msg.Role, RoleTool)
	}
	if uses := msg.ToolUses(); len(uses) != 1 || uses[0].ID != "call_1" {
		t.Errorf("ToolUses() = %v", uses)
	}
	if results := msg.ToolResults(); len(results) != 1 || results[0].Content != "sunny" {
		t.Errorf("ToolResults() = %v", results)
	}
}

func TestRequest_FindTool(t *testing.T) {
	req := &Request{
		Tools: []Tool{
			{Name: "search", Description: "Search documents"},
			{Name: "fetch", Description: "Fetch a URL"},
		},
	}

	tool, ok := req.FindTool("fetch")
	if !ok {
		t.Fatal("FindTool() did not find declared tool")
	}
	if tool.Description != "Fetch a URL" {
		t.Errorf("FindTool() returned wrong tool: %+v", tool)
	}

	if _, ok := req.FindTool("missing"); ok {
		t.Error("FindTool() found undeclared tool")
	}
}

func TestRequest_WithMessages(t *testing.T) {
	original := &Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []Message{NewUserMessage("hi")},
	}

	extended := original.WithMessages(append(original.Messages, NewAssistantMessage("hello")))

	if len(original.Messages) != 1 {
		t.Errorf("WithMessages() mutated the original request")
	}
	if len(extended.Messages) != 2 {
		t.Errorf("WithMessages() message count = %d, want 2", len(extended.Messages))
	}
	if extended.Model != original.Model {
		t.Errorf("WithMessages() dropped model field")
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	temp := 0.7
	original := Request{
		Model: "gpt-4o",
		Messages: []Message{
			NewSystemMessage("You are helpful."),
			NewUserMessage("What's the weather?"),
			NewMessage(RoleAssistant, ToolUseBlock("call_1", "get_weather", `{"location":"SF"}`)),
			NewToolResultMessage(ToolResultBlock("call_1", "sunny", false)),
		},
		Tools: []Tool{
			{
				Name:        "get_weather",
				Description: "Get current weather",
				Schema: ObjectSchema(map[string]Property{
					"location": {Type: "string", Description: "City name"},
					"units":    {Type: "string", Enum: []string{"celsius", "fahrenheit"}},
				}, "location"),
			},
		},
		Stream:      true,
		MaxTokens:   4096,
		Temperature: &temp,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Request
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip lost fields:\n got: %+v\nwant: %+v", decoded, original)
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	original := Response{
		ID:    "msg_01",
		Model: "claude-sonnet-4-20250514",
		Role:  RoleAssistant,
		Blocks: []Block{
			TextBlock("Checking."),
			ToolUseBlock("call_1", "get_weather", `{"location":"SF"}`),
		},
		StopReason: StopReasonToolUse,
		Usage:      &Usage{InputTokens: 12, OutputTokens: 34},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip lost fields:\n got: %+v\nwant: %+v", decoded, original)
	}
}

func TestResponse_Message(t *testing.T) {
	resp := &Response{
		Blocks: []Block{TextBlock("done")},
	}

	msg := resp.Message()
	if msg.Role != RoleAssistant {
		t.Errorf("Message() role = %v, want assistant default", msg.Role)
	}

	// The converted message must not alias the response's blocks.
	msg.Blocks[0].Text = "changed"
	if resp.Blocks[0].Text != "done" {
		t.Error("Message() aliased the response blocks")
	}
}

func TestUsage_Total(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5}
	if u.Total() != 15 {
		t.Errorf("Total() = %d, want 15", u.Total())
	}
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Status: 429, Code: "rate_limit_error", Message: "slow down"}
	want := "provider returned status 429: slow down (rate_limit_error)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAgentError_Unwrap(t *testing.T) {
	err := &AgentError{Agent: "researcher", Err: ErrEmptyResult}
	if !errors.Is(err, ErrEmptyResult) {
		t.Error("AgentError should unwrap to the original error")
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Err: cause}
	if !errors.Is(err, cause) {
		t.Error("TransportError should unwrap to the original error")
	}
}
