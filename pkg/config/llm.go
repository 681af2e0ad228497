package config

import (
	"fmt"
	"os"
	"time"
)

// Provider identifies a chat backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// LLMConfig configures a single provider adapter.
//
// Example:
//
//	llms:
//	  claude:
//	    provider: anthropic
//	    model: claude-sonnet-4-5
//	    api_key: ${ANTHROPIC_API_KEY}
type LLMConfig struct {
	// Provider type (anthropic, openai, ollama).
	Provider Provider `yaml:"provider"`

	// Model is the default model for requests routed to this adapter.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates with the provider.
	// Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxTokens is the default generation budget.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Temperature is the default sampling temperature.
	// A pointer so an explicit zero survives decoding.
	Temperature *float64 `yaml:"temperature,omitempty"`

	// Timeout bounds a single HTTP request.
	Timeout Duration `yaml:"timeout,omitempty"`

	// MaxRetries bounds retry attempts on transient failures.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// SetDefaults applies per-provider defaults.
func (c *LLMConfig) SetDefaults() {
	switch c.Provider {
	case ProviderAnthropic:
		if c.Model == "" {
			c.Model = "claude-sonnet-4-5"
		}
		if c.APIKey == "" {
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o"
		}
		if c.APIKey == "" {
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case ProviderOllama:
		if c.Model == "" {
			c.Model = "llama3.3"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(120 * time.Second)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
}

// Validate checks the adapter configuration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	case "":
		return fmt.Errorf("provider is required")
	default:
		return fmt.Errorf("unknown provider %q (valid: anthropic, openai, ollama)", c.Provider)
	}
	if c.Provider != ProviderOllama && c.APIKey == "" {
		return fmt.Errorf("%s: api_key is required", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0, 2]", *c.Temperature)
	}
	return nil
}

// DetectProvider infers a provider from the environment.
// Anthropic wins when both keys are set; Ollama is the fallback.
func DetectProvider() Provider {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return ProviderAnthropic
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}
