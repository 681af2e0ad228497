// Package config loads switchboard configuration from YAML with
// environment variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/switchboardai/switchboard/pkg/observability"
)

// Config is the root configuration document.
type Config struct {
	// LLMs maps adapter names to provider configurations.
	// Adapters are registered in the order anthropic, openai, ollama.
	LLMs map[string]LLMConfig `yaml:"llms,omitempty"`

	// Agents maps agent names to their definitions.
	Agents map[string]AgentConfig `yaml:"agents,omitempty"`

	// DefaultAgent names the agent the CLI talks to when none is given.
	DefaultAgent string `yaml:"default_agent,omitempty"`

	// Logger configures logging output.
	Logger LoggerConfig `yaml:"logger,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics observability.MetricsConfig `yaml:"metrics,omitempty"`
}

// AgentConfig defines an agent.
type AgentConfig struct {
	// Description of what the agent does. Shown to delegating agents.
	Description string `yaml:"description,omitempty"`

	// Instructions is the agent's system prompt body.
	Instructions string `yaml:"instructions,omitempty"`

	// Model routes the agent's requests to an adapter by prefix.
	Model string `yaml:"model,omitempty"`

	// Delegates lists agents this agent may transfer to.
	Delegates []string `yaml:"delegates,omitempty"`

	// MaxTokens overrides the adapter's generation budget.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature overrides the adapter's sampling temperature.
	Temperature *float64 `yaml:"temperature,omitempty"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	// Level specifies the log level (debug, info, warn, error).
	// Default: info
	Level string `yaml:"level,omitempty"`

	// File specifies the log file path. Empty means stderr.
	File string `yaml:"file,omitempty"`

	// Format is "text" or "json". Default: text
	Format string `yaml:"format,omitempty"`
}

// Load reads a YAML config file, expands environment variable
// references, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	expanded := ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns a config for the provider detected from the environment.
func Default() *Config {
	provider := DetectProvider()
	cfg := &Config{
		LLMs: map[string]LLMConfig{
			string(provider): {Provider: provider},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	for name, llm := range c.LLMs {
		llm.SetDefaults()
		c.LLMs[name] = llm
	}
	for name, agent := range c.Agents {
		if agent.Model == "" {
			agent.Model = c.firstModel()
		}
		c.Agents[name] = agent
	}
	if c.DefaultAgent == "" && len(c.Agents) == 1 {
		for name := range c.Agents {
			c.DefaultAgent = name
		}
	}
	c.Logger.SetDefaults()
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
}

// Validate checks all sections and cross-references.
func (c *Config) Validate() error {
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llms.%s: %w", name, err)
		}
	}
	for name, agent := range c.Agents {
		for _, delegate := range agent.Delegates {
			if _, ok := c.Agents[delegate]; !ok {
				return fmt.Errorf("agents.%s: unknown delegate %q", name, delegate)
			}
			if delegate == name {
				return fmt.Errorf("agents.%s: cannot delegate to itself", name)
			}
		}
	}
	if c.DefaultAgent != "" {
		if _, ok := c.Agents[c.DefaultAgent]; !ok {
			return fmt.Errorf("default_agent: unknown agent %q", c.DefaultAgent)
		}
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}

func (c *Config) firstModel() string {
	for _, llm := range c.LLMs {
		if llm.Model != "" {
			return llm.Model
		}
	}
	return ""
}

// SetDefaults applies default values to LoggerConfig.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// Validate checks the logger configuration.
func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (valid: text, json)", c.Format)
	}
	return nil
}
