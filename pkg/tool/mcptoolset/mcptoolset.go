// Package mcptoolset exposes tools from MCP (Model Context Protocol)
// servers as chat tools.
//
// The connection is established lazily on the first Tools call.
//
// Transport support:
//   - stdio: subprocess communication via mcp-go
//   - sse, streamable-http: JSON-RPC over HTTP with retry/backoff
package mcptoolset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/httpclient"
	"github.com/switchboardai/switchboard/pkg/version"
)

const (
	protocolVersion = "2024-11-05"

	// DefaultSSETimeout bounds reading one SSE response. Long enough
	// for slow server-side tool runs.
	DefaultSSETimeout = 5 * time.Minute
)

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset in logs.
	Name string

	// URL is the MCP server URL (HTTP transports).
	URL string

	// Command launches a stdio server subprocess.
	Command string

	// Args for the stdio subprocess.
	Args []string

	// Env for the stdio subprocess.
	Env map[string]string

	// Filter limits which tool names are exposed. Empty means all.
	Filter []string

	// MaxRetries for HTTP requests (default: 3).
	MaxRetries int

	// SSETimeout for SSE response reading (default: 5m).
	SSETimeout time.Duration
}

// Toolset is an MCP-backed tool source with lazy initialization.
type Toolset struct {
	cfg       Config
	filterSet map[string]bool

	mu         sync.Mutex
	stdio      *client.Client
	httpClient *httpclient.Client
	tools      []chat.Tool
	connected  bool

	sessionMu sync.RWMutex
	sessionID string
}

// New creates an MCP toolset. Either URL or Command is required.
func New(cfg Config) (*Toolset, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, fmt.Errorf("either url or command is required")
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = DefaultSSETimeout
	}

	return &Toolset{cfg: cfg, filterSet: filterSet}, nil
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// Tools returns the server's tools, connecting on first use.
func (t *Toolset) Tools(ctx context.Context) ([]chat.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		if err := t.connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
		}
	}
	return t.tools, nil
}

// Close shuts down the connection. A closed toolset reconnects on the
// next Tools call.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	if t.stdio != nil {
		err = t.stdio.Close()
		t.stdio = nil
	}
	t.httpClient = nil
	t.tools = nil
	t.connected = false
	return err
}

func (t *Toolset) connect(ctx context.Context) error {
	if t.cfg.Command != "" {
		return t.connectStdio(ctx)
	}
	return t.connectHTTP(ctx)
}

func (t *Toolset) connectStdio(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(t.cfg.Command, envList(t.cfg.Env), t.cfg.Args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "switchboard",
		Version: version.Version,
	}
	initReq.Params.ProtocolVersion = protocolVersion

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	var tools []chat.Tool
	for _, mcpTool := range listResp.Tools {
		if t.filterSet != nil && !t.filterSet[mcpTool.Name] {
			continue
		}
		name := mcpTool.Name
		tools = append(tools, chat.Tool{
			Name:        name,
			Description: mcpTool.Description,
			Schema:      convertSchema(mcpTool.InputSchema),
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return t.callStdio(ctx, name, args)
			},
		})
	}

	t.stdio = mcpClient
	t.tools = tools
	t.connected = true

	slog.Info("connected to MCP server (stdio)",
		"name", t.cfg.Name,
		"command", t.cfg.Command,
		"tools", len(tools),
	)
	return nil
}

func (t *Toolset) connectHTTP(ctx context.Context) error {
	t.httpClient = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(t.cfg.MaxRetries),
		httpclient.WithBaseDelay(2*time.Second),
	)

	initResp, err := t.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    "switchboard",
			"version": version.Version,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("MCP init error: %s", initResp.Error.Message)
	}

	listResp, err := t.rpc(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("MCP list error: %s", listResp.Error.Message)
	}

	var listed struct {
		Tools []struct {
			Name        string      `json:"name"`
			Description string      `json:"description"`
			InputSchema chat.Schema `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := remarshal(listResp.Result, &listed); err != nil {
		return fmt.Errorf("unexpected tools/list result: %w", err)
	}

	var tools []chat.Tool
	for _, remote := range listed.Tools {
		if t.filterSet != nil && !t.filterSet[remote.Name] {
			continue
		}
		name := remote.Name
		tools = append(tools, chat.Tool{
			Name:        name,
			Description: remote.Description,
			Schema:      remote.InputSchema,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return t.callHTTP(ctx, name, args)
			},
		})
	}

	t.tools = tools
	t.connected = true

	slog.Info("connected to MCP server (HTTP)",
		"name", t.cfg.Name,
		"url", t.cfg.URL,
		"tools", len(tools),
	)
	return nil
}

func (t *Toolset) callStdio(ctx context.Context, name string, args map[string]any) (string, error) {
	t.mu.Lock()
	mcpClient := t.stdio
	t.mu.Unlock()

	if mcpClient == nil {
		return "", fmt.Errorf("MCP client not connected")
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := mcpClient.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

func (t *Toolset) callHTTP(ctx context.Context, name string, args map[string]any) (string, error) {
	resp, err := t.rpc(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("MCP call failed: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%s", resp.Error.Message)
	}

	var result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := remarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unexpected tools/call result: %w", err)
	}

	var texts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpc sends one JSON-RPC request over HTTP and reads the response,
// which may arrive as plain JSON or as an SSE event.
func (t *Toolset) rpc(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	t.sessionMu.RLock()
	sessionID := t.sessionID
	t.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		t.sessionMu.Lock()
		t.sessionID = newSessionID
		t.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return t.readSSEResponse(httpResp)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC response from an
// SSE stream.
func (t *Toolset) readSSEResponse(httpResp *http.Response) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultChan := make(chan result, 1)

	go func() {
		defer httpResp.Body.Close()

		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		flush := func() *jsonRPCResponse {
			if data.Len() == 0 {
				return nil
			}
			var resp jsonRPCResponse
			if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
				data.Reset()
				return nil
			}
			return &resp
		}

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			line = strings.TrimSpace(line)

			if line == "" {
				if resp := flush(); resp != nil {
					resultChan <- result{response: resp}
					return
				}
				continue
			}
			if after, ok := strings.CutPrefix(line, "data:"); ok {
				data.WriteString(strings.TrimSpace(after))
			}
		}

		if resp := flush(); resp != nil {
			resultChan <- result{response: resp}
			return
		}
		resultChan <- result{err: fmt.Errorf("SSE stream ended without complete message")}
	}()

	select {
	case res := <-resultChan:
		return res.response, res.err
	case <-time.After(t.cfg.SSETimeout):
		return nil, fmt.Errorf("timeout reading SSE response after %v", t.cfg.SSETimeout)
	}
}

// envList converts an env map to "KEY=VALUE" pairs.
func envList(env map[string]string) []string {
	if env == nil {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

func convertSchema(schema mcp.ToolInputSchema) chat.Schema {
	var out chat.Schema
	if err := remarshal(schema, &out); err != nil {
		return chat.ObjectSchema(nil)
	}
	if out.Type == "" {
		out.Type = "object"
	}
	return out
}

// remarshal converts between loosely typed JSON values via a
// marshal/unmarshal round trip.
func remarshal(from, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}
