// Package observability provides metrics recording for chat requests, tool
// executions, and agent runs. Metrics are exposed through an OpenTelemetry
// meter backed by a Prometheus exporter; the host application decides where
// (or whether) to serve them.
package observability

import (
	"context"
	"time"
)

// Recorder receives measurements from the orchestrator, adapters, and the
// agent engine. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordChatCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)
	RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error)
}

// Noop is a Recorder that discards all measurements. Used wherever metrics
// are disabled.
type Noop struct{}

func (Noop) RecordChatCall(context.Context, string, time.Duration, int, int, error) {}
func (Noop) RecordToolCall(context.Context, string, time.Duration, error)           {}
func (Noop) RecordAgentRun(context.Context, string, time.Duration, error)           {}

var _ Recorder = Noop{}
