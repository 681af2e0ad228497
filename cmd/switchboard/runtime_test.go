package main

import (
	"testing"

	"github.com/switchboardai/switchboard/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		LLMs: map[string]config.LLMConfig{
			"claude": {Provider: config.ProviderAnthropic, APIKey: "k"},
			"local":  {Provider: config.ProviderOllama},
		},
		Agents: map[string]config.AgentConfig{
			"coordinator": {Description: "Routes work.", Delegates: []string{"worker"}},
			"worker":      {Description: "Does work."},
		},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestBuildDispatcher(t *testing.T) {
	d, err := buildDispatcher(testConfig(t))
	if err != nil {
		t.Fatalf("buildDispatcher: %v", err)
	}
	if d.Count() != 2 {
		t.Errorf("adapters = %d, want 2", d.Count())
	}
}

func TestBuildDispatcherRejectsDuplicateProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLMs["claude2"] = cfg.LLMs["claude"]
	if _, err := buildDispatcher(cfg); err == nil {
		t.Error("expected duplicate provider error")
	}
}

func TestBuildDispatcherRequiresProviders(t *testing.T) {
	if _, err := buildDispatcher(&config.Config{}); err == nil {
		t.Error("expected error for empty llms")
	}
}

func TestBuildAgentsResolvesDelegates(t *testing.T) {
	agents := buildAgents(testConfig(t))

	coordinator := agents["coordinator"]
	if coordinator == nil {
		t.Fatal("missing coordinator")
	}
	if len(coordinator.Delegates) != 1 || coordinator.Delegates[0] != agents["worker"] {
		t.Errorf("delegates = %v", coordinator.Delegates)
	}
	if coordinator.Model == "" {
		t.Error("agent model not defaulted from llms")
	}
}
