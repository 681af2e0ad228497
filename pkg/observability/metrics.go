package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the Prometheus-backed recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Metrics is a Recorder backed by OpenTelemetry instruments with a
// Prometheus exporter.
type Metrics struct {
	registry *prometheus.Registry

	chatDuration metric.Float64Histogram
	chatCalls    metric.Int64Counter
	chatErrors   metric.Int64Counter
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	agentDuration metric.Float64Histogram
	agentRuns     metric.Int64Counter
	agentErrors   metric.Int64Counter
}

// InitMetrics builds the instruments. With cfg.Enabled false it returns a
// nil *Metrics, which callers should swap for Noop.
func InitMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("switchboard")

	m := &Metrics{registry: registry}

	if m.chatDuration, err = meter.Float64Histogram(
		"switchboard_chat_request_duration_seconds",
		metric.WithDescription("Chat request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.chatCalls, err = meter.Int64Counter(
		"switchboard_chat_requests_total",
		metric.WithDescription("Total chat requests"),
	); err != nil {
		return nil, err
	}
	if m.chatErrors, err = meter.Int64Counter(
		"switchboard_chat_errors_total",
		metric.WithDescription("Total chat request errors"),
	); err != nil {
		return nil, err
	}
	if m.inputTokens, err = meter.Int64Counter(
		"switchboard_tokens_input_total",
		metric.WithDescription("Total input tokens sent to providers"),
	); err != nil {
		return nil, err
	}
	if m.outputTokens, err = meter.Int64Counter(
		"switchboard_tokens_output_total",
		metric.WithDescription("Total output tokens received from providers"),
	); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"switchboard_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.toolCalls, err = meter.Int64Counter(
		"switchboard_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, err
	}
	if m.toolErrors, err = meter.Int64Counter(
		"switchboard_tool_errors_total",
		metric.WithDescription("Total tool execution errors"),
	); err != nil {
		return nil, err
	}
	if m.agentDuration, err = meter.Float64Histogram(
		"switchboard_agent_run_duration_seconds",
		metric.WithDescription("Agent run duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.agentRuns, err = meter.Int64Counter(
		"switchboard_agent_runs_total",
		metric.WithDescription("Total agent runs"),
	); err != nil {
		return nil, err
	}
	if m.agentErrors, err = meter.Int64Counter(
		"switchboard_agent_errors_total",
		metric.WithDescription("Total agent run errors"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Handler returns an HTTP handler serving the metrics in Prometheus text
// format. Serving it is the host's decision.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordChatCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.chatCalls.Add(ctx, 1, attrs)
	m.chatDuration.Record(ctx, duration.Seconds(), attrs)
	if inputTokens > 0 {
		m.inputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.outputTokens.Add(ctx, int64(outputTokens), attrs)
	}
	if err != nil {
		m.chatErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.agentRuns.Add(ctx, 1, attrs)
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.agentErrors.Add(ctx, 1, attrs)
	}
}

var _ Recorder = (*Metrics)(nil)
