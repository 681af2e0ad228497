package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/dispatch"
	"github.com/switchboardai/switchboard/pkg/observability"
	"github.com/switchboardai/switchboard/pkg/orchestrator"
)

// DefaultMaxDepth caps how deep a delegation chain may go before the run
// fails, which also breaks transfer cycles between agents.
const DefaultMaxDepth = 8

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder installs a metrics recorder.
func WithRecorder(r observability.Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxDepth caps the delegation depth.
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithMaxIterations caps tool rounds per agent turn.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// Engine runs agents against a dispatcher. One engine serves any number of
// agents and concurrent runs.
type Engine struct {
	dispatcher    *dispatch.Dispatcher
	recorder      observability.Recorder
	logger        *slog.Logger
	maxDepth      int
	maxIterations int
}

// NewEngine creates an agent engine on top of a dispatcher.
func NewEngine(d *dispatch.Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher:    d,
		recorder:      observability.Noop{},
		logger:        slog.Default(),
		maxDepth:      DefaultMaxDepth,
		maxIterations: orchestrator.DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one agent turn: synthesize the system prompt, drive the
// conversation through the tool-call loop, and return the final text.
//
// Failures are reported exactly once on each path: the error event fires,
// and the returned error wraps the cause as an AgentError.
func (e *Engine) Run(ctx context.Context, a *Agent, actx Context) (string, error) {
	start := time.Now()
	text, err := e.run(ctx, a, actx)
	e.recorder.RecordAgentRun(ctx, a.Name, time.Since(start), err)

	if err != nil {
		actx.emit(Event{Agent: a.Name, Type: EventError, Detail: err.Error(), IsError: true})
		e.logger.Error("agent run failed", "agent", a.Name, "error", err)
		return "", &chat.AgentError{Agent: a.Name, Err: err}
	}

	actx.emit(Event{Agent: a.Name, Type: EventCompleted})
	return text, nil
}

func (e *Engine) run(ctx context.Context, a *Agent, actx Context) (string, error) {
	if actx.depth >= e.maxDepth {
		return "", fmt.Errorf("delegation depth limit (%d) reached", e.maxDepth)
	}

	actx.emit(Event{Agent: a.Name, Type: EventStarted})
	e.logger.Debug("agent run started", "agent", a.Name, "model", a.Model, "depth", actx.depth)

	tools := slices.Clone(a.Tools)
	if len(a.Delegates) > 0 {
		tools = append(tools, e.transferTool(a, actx))
	}

	messages := make([]chat.Message, 0, len(actx.Messages)+1)
	messages = append(messages, chat.NewSystemMessage(a.SystemPrompt(time.Now())))
	messages = append(messages, actx.Messages...)

	req := &chat.Request{
		Model:       a.Model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	}

	orch := orchestrator.New(e.dispatcher,
		orchestrator.WithRecorder(e.recorder),
		orchestrator.WithMaxIterations(e.maxIterations),
		orchestrator.WithHooks(orchestrator.Hooks{
			OnToolCall: func(_ context.Context, call chat.Block) {
				actx.emit(Event{Agent: a.Name, Type: EventToolCalled, Tool: call.Name, Detail: call.Arguments})
			},
			OnToolResult: func(_ context.Context, call chat.Block, result chat.Block) {
				actx.emit(Event{
					Agent:   a.Name,
					Type:    EventToolCompleted,
					Tool:    call.Name,
					Detail:  result.Content,
					IsError: result.IsError,
				})
			},
		}))

	resp, err := orch.Perform(ctx, req)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", chat.ErrEmptyResult
	}
	return text, nil
}

// transferTool builds the synthetic delegation tool. Its schema restricts
// the target to this agent's declared delegates and demands a reason, which
// becomes part of the handoff the delegate sees.
func (e *Engine) transferTool(a *Agent, actx Context) chat.Tool {
	names := make([]string, len(a.Delegates))
	for i, d := range a.Delegates {
		names[i] = d.Name
	}

	return chat.Tool{
		Name:        "transfer",
		Description: "Hand the conversation to another agent better suited for the current task.",
		Schema: chat.ObjectSchema(map[string]chat.Property{
			"agent_name": {
				Type:        "string",
				Description: "The agent to hand the conversation to.",
				Enum:        names,
			},
			"reason": {
				Type:        "string",
				Description: "Why this agent should take over.",
			},
		}, "agent_name", "reason"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["agent_name"].(string)
			reason, _ := args["reason"].(string)

			delegate := a.Delegate(name)
			if delegate == nil {
				return "", fmt.Errorf("no delegate named %q", name)
			}

			actx.emit(Event{Agent: a.Name, Type: EventTransfer, Detail: name})

			// The handoff pair: who the delegate is acting for, and why.
			handoff := make([]chat.Message, 0, len(actx.Messages)+2)
			handoff = append(handoff, actx.Messages...)
			handoff = append(handoff,
				chat.NewSystemMessage(fmt.Sprintf(
					"You are now %s, acting as a delegate of %s. The conversation was handed to you for the reason below.",
					delegate.Name, a.Name)),
				chat.NewAssistantMessage(reason),
			)

			return e.Run(ctx, delegate, Context{
				Messages: handoff,
				Events:   actx.Events,
				Parent:   a,
				depth:    actx.depth + 1,
			})
		},
	}
}
