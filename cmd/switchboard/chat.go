package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/switchboardai/switchboard/pkg/agent"
	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/config"
	"github.com/switchboardai/switchboard/pkg/orchestrator"
	"github.com/switchboardai/switchboard/pkg/tool/mcptoolset"
)

// ChatCmd talks to an agent, interactively or one-shot.
type ChatCmd struct {
	Agent       string   `help:"Agent to talk to (defaults to the config's default_agent)."`
	Provider    string   `help:"Provider for zero-config mode (anthropic, openai, ollama)."`
	Model       string   `help:"Model name."`
	APIKey      string   `name:"api-key" help:"API key (defaults to environment variable)."`
	BaseURL     string   `name:"base-url" help:"Custom API base URL."`
	Instruction string   `help:"System instruction for the zero-config agent."`
	MCPURL      string   `name:"mcp-url" help:"MCP server URL providing extra tools."`
	Tools       bool     `help:"Enable built-in tools (current_time, fetch_url)."`
	Stream      bool     `help:"Stream responses token by token (agents without delegates only)."`
	Verbose     bool     `short:"v" help:"Print tool and delegation events."`
	Prompt      []string `arg:"" optional:"" help:"One-shot prompt. Omit for interactive mode."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := c.loadConfig(cli)
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return err
	}
	recorder, err := initRecorder(cfg)
	if err != nil {
		return err
	}

	agents := buildAgents(cfg)
	target, err := c.selectAgent(cfg, agents)
	if err != nil {
		return err
	}

	if c.Tools {
		builtins, err := builtinTools()
		if err != nil {
			return err
		}
		target.Tools = append(target.Tools, builtins...)
	}

	if c.MCPURL != "" {
		toolset, err := mcptoolset.New(mcptoolset.Config{Name: "mcp", URL: c.MCPURL})
		if err != nil {
			return err
		}
		defer toolset.Close()
		tools, err := toolset.Tools(ctx)
		if err != nil {
			return err
		}
		target.Tools = append(target.Tools, tools...)
	}

	engine := agent.NewEngine(dispatcher, agent.WithRecorder(recorder))
	session := &chatSession{
		engine:  engine,
		orch:    orchestrator.New(dispatcher, orchestrator.WithRecorder(recorder)),
		agent:   target,
		stream:  c.Stream && len(target.Delegates) == 0,
		verbose: c.Verbose,
	}

	if len(c.Prompt) > 0 {
		return session.turn(ctx, strings.Join(c.Prompt, " "))
	}
	return session.repl(ctx)
}

// loadConfig resolves the config file and zero-config flags into one
// Config. Flags override the file.
func (c *ChatCmd) loadConfig(cli *CLI) (*config.Config, error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if c.Provider != "" {
		llm := config.LLMConfig{
			Provider: config.Provider(c.Provider),
			Model:    c.Model,
			APIKey:   c.APIKey,
			BaseURL:  c.BaseURL,
		}
		llm.SetDefaults()
		if err := llm.Validate(); err != nil {
			return nil, err
		}
		cfg.LLMs = map[string]config.LLMConfig{c.Provider: llm}
	} else if c.Model != "" || c.APIKey != "" || c.BaseURL != "" {
		for name, llm := range cfg.LLMs {
			if c.Model != "" {
				llm.Model = c.Model
			}
			if c.APIKey != "" {
				llm.APIKey = c.APIKey
			}
			if c.BaseURL != "" {
				llm.BaseURL = c.BaseURL
			}
			cfg.LLMs[name] = llm
		}
	}
	return cfg, nil
}

func (c *ChatCmd) selectAgent(cfg *config.Config, agents map[string]*agent.Agent) (*agent.Agent, error) {
	name := c.Agent
	if name == "" {
		name = cfg.DefaultAgent
	}
	if name != "" {
		target, ok := agents[name]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", name)
		}
		return target, nil
	}

	// Zero-config mode: synthesize an assistant on the first model.
	model := c.Model
	if model == "" {
		for _, llm := range cfg.LLMs {
			model = llm.Model
			break
		}
	}
	return &agent.Agent{
		Name:         "assistant",
		Description:  "General purpose assistant.",
		Instructions: c.Instruction,
		Model:        model,
	}, nil
}

type chatSession struct {
	engine  *agent.Engine
	orch    *orchestrator.Orchestrator
	agent   *agent.Agent
	stream  bool
	verbose bool
	history []chat.Message
}

func (s *chatSession) repl(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("Chatting with %s. Commands: /quit, /clear\n\n", s.agent.Name)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("you: ")

		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)

		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			s.history = nil
			fmt.Println("history cleared")
			continue
		}

		if err := s.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (s *chatSession) turn(ctx context.Context, input string) error {
	messages := append(append([]chat.Message(nil), s.history...), chat.NewUserMessage(input))

	var text string
	var err error
	if s.stream {
		text, err = s.streamTurn(ctx, messages)
	} else {
		text, err = s.engine.Run(ctx, s.agent, agent.Context{
			Messages: messages,
			Events:   s.eventSink(),
		})
		if err == nil {
			fmt.Printf("%s: %s\n", s.agent.Name, text)
		}
	}
	if err != nil {
		return err
	}

	s.history = append(messages, chat.NewAssistantMessage(text))
	return nil
}

// streamTurn prints deltas as they arrive and returns the text of the
// final round, after any tool rounds settled.
func (s *chatSession) streamTurn(ctx context.Context, messages []chat.Message) (string, error) {
	system := chat.NewSystemMessage(s.agent.SystemPrompt(time.Now()))
	req := &chat.Request{
		Model:       s.agent.Model,
		Messages:    append([]chat.Message{system}, messages...),
		Tools:       s.agent.Tools,
		MaxTokens:   s.agent.MaxTokens,
		Temperature: s.agent.Temperature,
	}

	ch, err := s.orch.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	fmt.Printf("%s: ", s.agent.Name)
	var round strings.Builder
	var final string
	for resp := range ch {
		if resp.Err != nil {
			fmt.Println()
			return "", resp.Err
		}
		if resp.Delta == nil {
			continue
		}
		fmt.Print(resp.Delta.Text)
		round.WriteString(resp.Delta.Text)
		if resp.StopReason != "" {
			final = round.String()
			round.Reset()
		}
	}
	fmt.Println()
	return final, nil
}

func (s *chatSession) eventSink() agent.EventSink {
	if !s.verbose {
		return nil
	}
	return func(e agent.Event) {
		switch e.Type {
		case agent.EventToolCalled:
			fmt.Fprintf(os.Stderr, "  [%s] tool %s\n", e.Agent, e.Tool)
		case agent.EventTransfer:
			fmt.Fprintf(os.Stderr, "  [%s] transfer -> %s\n", e.Agent, e.Detail)
		case agent.EventError:
			fmt.Fprintf(os.Stderr, "  [%s] error: %s\n", e.Agent, e.Detail)
		}
	}
}
