// Package orchestrator runs the tool-call loop: dispatch a request, execute
// any tools the model asked for, feed the results back, and repeat until the
// model stops asking.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/dispatch"
	"github.com/switchboardai/switchboard/pkg/observability"
	"github.com/switchboardai/switchboard/pkg/stream"
)

// DefaultMaxIterations bounds how many tool rounds a single Perform or
// Stream call may run before giving up on the model converging.
const DefaultMaxIterations = 10

// ErrTooManyIterations is returned alongside the last response when the
// model keeps requesting tools past the iteration limit.
var ErrTooManyIterations = errors.New("orchestrator: tool-call iteration limit exceeded")

// Hooks receive notifications as the loop progresses. All fields are
// optional and are called synchronously from the executing goroutine.
type Hooks struct {
	// OnToolCall fires after a tool use is detected and its arguments
	// decoded, immediately before the handler runs.
	OnToolCall func(ctx context.Context, call chat.Block)

	// OnToolResult fires after the handler returns, with the originating
	// call and the result block that will be sent back to the model.
	OnToolResult func(ctx context.Context, call chat.Block, result chat.Block)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations caps the number of tool rounds per call.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithHooks installs progress callbacks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithRecorder installs a metrics recorder.
func WithRecorder(r observability.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// Orchestrator drives requests through a dispatcher and transparently
// resolves tool calls. It is safe for concurrent use.
type Orchestrator struct {
	dispatcher    *dispatch.Dispatcher
	maxIterations int
	hooks         Hooks
	recorder      observability.Recorder
	tracer        trace.Tracer
}

// New creates an orchestrator on top of a dispatcher.
func New(d *dispatch.Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dispatcher:    d,
		maxIterations: DefaultMaxIterations,
		recorder:      observability.Noop{},
		tracer:        otel.Tracer("switchboard/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Perform sends the request and resolves tool calls until the model returns
// a response with no tool uses, then returns that response. The caller's
// request is never mutated; continuations run on copies.
//
// When the iteration limit is hit the last response is returned together
// with ErrTooManyIterations so callers can still inspect what the model
// wanted.
func (o *Orchestrator) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.perform",
		trace.WithAttributes(attribute.String("model", req.Model)))
	defer span.End()

	messages := slices.Clone(req.Messages)
	var last *chat.Response

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		resp, err := o.dispatchOnce(ctx, req.WithMessages(messages))
		if err != nil {
			return nil, err
		}
		last = resp

		uses := resp.ToolUses()
		if len(uses) == 0 {
			span.SetAttributes(attribute.Int("iterations", iteration+1))
			return resp, nil
		}

		results, err := o.executeTools(ctx, req, uses)
		if err != nil {
			return nil, err
		}
		messages = append(messages, chat.NewToolRoundMessage(uses, results))
	}

	return last, ErrTooManyIterations
}

// Stream is the streaming counterpart of Perform. Deltas from every round
// are forwarded on the returned channel as they arrive; between rounds the
// combined response is inspected for tool uses and the loop continues with
// the results appended. The channel closes after the terminal round. A
// failure mid-stream is delivered as a final element with Err set.
//
// Cancelling ctx stops forwarding and suppresses any further continuation.
func (o *Orchestrator) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	upstream, err := o.dispatcher.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan *chat.Response, 64)
	go o.streamLoop(ctx, req, upstream, out)
	return out, nil
}

func (o *Orchestrator) streamLoop(ctx context.Context, req *chat.Request, upstream <-chan *chat.Response, out chan<- *chat.Response) {
	defer close(out)

	messages := slices.Clone(req.Messages)

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		acc := stream.NewAccumulator()
		for resp := range upstream {
			acc.Add(resp)
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
			if resp.Err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		combined := acc.Response()
		uses := combined.ToolUses()
		if len(uses) == 0 {
			return
		}

		results, err := o.executeTools(ctx, req, uses)
		if err != nil {
			o.emitError(ctx, out, err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		messages = append(messages, chat.NewToolRoundMessage(uses, results))

		upstream, err = o.dispatcher.Stream(ctx, req.WithMessages(messages))
		if err != nil {
			o.emitError(ctx, out, err)
			return
		}
	}

	o.emitError(ctx, out, ErrTooManyIterations)
}

func (o *Orchestrator) emitError(ctx context.Context, out chan<- *chat.Response, err error) {
	select {
	case out <- chat.ErrorResponse(err):
	case <-ctx.Done():
	}
}

func (o *Orchestrator) dispatchOnce(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	start := time.Now()
	resp, err := o.dispatcher.Perform(ctx, req)
	in, out := tokensOf(resp)
	o.recorder.RecordChatCall(ctx, req.Model, time.Since(start), in, out, err)
	return resp, err
}

// executeTools runs every requested tool concurrently and returns one
// result block per call, in the order the calls appeared in the response.
// Handler failures become is_error result blocks so the model can recover;
// unknown tools and undecodable arguments abort the loop instead.
func (o *Orchestrator) executeTools(ctx context.Context, req *chat.Request, uses []chat.Block) ([]chat.Block, error) {
	results := make([]chat.Block, len(uses))

	g, gctx := errgroup.WithContext(ctx)
	for i, use := range uses {
		g.Go(func() error {
			result, err := o.executeTool(gctx, req, use)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, req *chat.Request, use chat.Block) (chat.Block, error) {
	tool, ok := req.FindTool(use.Name)
	if !ok {
		return chat.Block{}, fmt.Errorf("%w: %q", chat.ErrUnknownTool, use.Name)
	}

	args, err := DecodeArguments(use.Arguments)
	if err != nil {
		return chat.Block{}, fmt.Errorf("%w: tool %q: %v", chat.ErrBadToolArguments, use.Name, err)
	}
	if missing := missingArguments(tool, args); len(missing) > 0 {
		return chat.Block{}, fmt.Errorf("%w: tool %q: %v", chat.ErrMissingToolArguments, use.Name, missing)
	}

	if o.hooks.OnToolCall != nil {
		o.hooks.OnToolCall(ctx, use)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.tool",
		trace.WithAttributes(attribute.String("tool", use.Name)))
	defer span.End()

	start := time.Now()
	content, herr := tool.Handler(ctx, args)
	o.recorder.RecordToolCall(ctx, use.Name, time.Since(start), herr)

	result := chat.ToolResultBlock(use.ID, content, false)
	if herr != nil {
		// Recoverable: the model sees the failure and can retry or
		// answer differently.
		result = chat.ToolResultBlock(use.ID, herr.Error(), true)
	}

	if o.hooks.OnToolResult != nil {
		o.hooks.OnToolResult(ctx, use, result)
	}
	return result, nil
}

// DecodeArguments parses a tool call's accumulated argument JSON. An empty
// string decodes to an empty map, which is what providers send for tools
// that take no parameters.
func DecodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func missingArguments(tool chat.Tool, args map[string]any) []string {
	var missing []string
	for _, key := range tool.Schema.Required {
		if _, ok := args[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func tokensOf(resp *chat.Response) (in, out int) {
	if resp == nil || resp.Usage == nil {
		return 0, 0
	}
	return resp.Usage.InputTokens, resp.Usage.OutputTokens
}
