package chat

import "context"

// Handler executes a tool invocation with decoded arguments and returns the
// result text. A returned error becomes an is_error tool result fed back to
// the model; it does not abort the conversation.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Property describes one tool parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Schema is the JSON-Schema-like tool parameter declaration. This is the one
// wire format the core commits to: tool declarations cross the backend
// boundary verbatim.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	return Schema{Type: "object", Properties: properties, Required: required}
}

// Tool is a named, schema-described capability the model may invoke.
// The handler is supplied by the caller or agent, never by the backend.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Schema      Schema  `json:"schema"`
	Handler     Handler `json:"-"`
}

// Request is the generic chat request. Stream asks the adapter for
// incremental output; Tools declares callable tools; Extra carries
// provider-specific fields that the generic contract does not model.
type Request struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Tools       []Tool         `json:"tools,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// FindTool returns the declared tool with the given name.
func (r *Request) FindTool(name string) (Tool, bool) {
	for _, tool := range r.Tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// WithMessages returns a shallow copy of the request carrying the given
// message list. Used to build continuation requests without mutating the
// original.
func (r *Request) WithMessages(messages []Message) *Request {
	next := *r
	next.Messages = messages
	return &next
}
