package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
llms:
  claude:
    provider: anthropic
    model: claude-sonnet-4-5
    api_key: ${TEST_ANTHROPIC_KEY}
  local:
    provider: ollama
    base_url: ${TEST_OLLAMA_URL:-http://localhost:11434}
    timeout: 90s

agents:
  assistant:
    description: General purpose assistant.
    instructions: Be concise.
    model: claude-sonnet-4-5
    delegates: [researcher]
  researcher:
    description: Looks things up.
    model: claude-sonnet-4-5

default_agent: assistant

logger:
  level: debug
  format: json
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	claude := cfg.LLMs["claude"]
	if claude.APIKey != "sk-ant-test" {
		t.Errorf("api_key = %q, want expanded env value", claude.APIKey)
	}
	if claude.Timeout.Duration() != 120*time.Second {
		t.Errorf("timeout = %v, want default 120s", claude.Timeout)
	}
	if claude.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want default 5", claude.MaxRetries)
	}

	local := cfg.LLMs["local"]
	if local.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url = %q, want default from ${VAR:-default}", local.BaseURL)
	}
	if local.Model != "llama3.3" {
		t.Errorf("ollama model = %q, want default llama3.3", local.Model)
	}
	if local.Timeout.Duration() != 90*time.Second {
		t.Errorf("timeout = %v, want 90s", local.Timeout)
	}

	if cfg.DefaultAgent != "assistant" {
		t.Errorf("default_agent = %q", cfg.DefaultAgent)
	}
	if got := cfg.Agents["assistant"].Delegates; len(got) != 1 || got[0] != "researcher" {
		t.Errorf("delegates = %v", got)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Format != "json" {
		t.Errorf("logger = %+v", cfg.Logger)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("metrics port = %d, want default 9090", cfg.Metrics.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Errorf("agents = %d, want 2", len(cfg.Agents))
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown provider",
			yaml: "llms:\n  x:\n    provider: gemini\n",
			want: "unknown provider",
		},
		{
			name: "missing api key",
			yaml: "llms:\n  x:\n    provider: anthropic\n    api_key: \"\"\n",
			want: "api_key is required",
		},
		{
			name: "unknown delegate",
			yaml: "agents:\n  a:\n    delegates: [ghost]\n",
			want: "unknown delegate",
		},
		{
			name: "self delegate",
			yaml: "agents:\n  a:\n    delegates: [a]\n",
			want: "cannot delegate to itself",
		},
		{
			name: "unknown default agent",
			yaml: "default_agent: ghost\n",
			want: "unknown agent",
		},
		{
			name: "bad log level",
			yaml: "logger:\n  level: loud\n",
			want: "invalid log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Keep provider defaults from picking up a real key.
			t.Setenv("ANTHROPIC_API_KEY", "")
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestDefaultAgentInferredWhenSingle(t *testing.T) {
	cfg, err := Parse([]byte("agents:\n  solo:\n    description: Only one.\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DefaultAgent != "solo" {
		t.Errorf("default_agent = %q, want solo", cfg.DefaultAgent)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SB_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${SB_SET}", "value"},
		{"$SB_SET", "value"},
		{"${SB_UNSET_VAR}", ""},
		{"${SB_UNSET_VAR:-fallback}", "fallback"},
		{"${SB_SET:-fallback}", "value"},
		{"prefix-${SB_SET}-suffix", "prefix-value-suffix"},
	}
	for _, tt := range tests {
		if got := ExpandEnv(tt.in); got != tt.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "b")
	if got := DetectProvider(); got != ProviderAnthropic {
		t.Errorf("got %q, want anthropic", got)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	if got := DetectProvider(); got != ProviderOpenAI {
		t.Errorf("got %q, want openai", got)
	}

	t.Setenv("OPENAI_API_KEY", "")
	if got := DetectProvider(); got != ProviderOllama {
		t.Errorf("got %q, want ollama", got)
	}
}
