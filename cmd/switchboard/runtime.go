package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/switchboardai/switchboard/pkg/agent"
	"github.com/switchboardai/switchboard/pkg/config"
	"github.com/switchboardai/switchboard/pkg/dispatch"
	"github.com/switchboardai/switchboard/pkg/llms"
	"github.com/switchboardai/switchboard/pkg/observability"
)

// buildDispatcher registers one adapter per configured provider, in the
// fixed order anthropic, openai, ollama so predicate overlaps resolve
// the same way every run.
func buildDispatcher(cfg *config.Config) (*dispatch.Dispatcher, error) {
	byProvider := map[config.Provider]config.LLMConfig{}
	for name, llm := range cfg.LLMs {
		if _, dup := byProvider[llm.Provider]; dup {
			return nil, fmt.Errorf("llms.%s: provider %s configured twice", name, llm.Provider)
		}
		byProvider[llm.Provider] = llm
	}

	d := dispatch.New()
	if llm, ok := byProvider[config.ProviderAnthropic]; ok {
		adapter := llms.NewAnthropic(adapterConfig(llm))
		d.Register(adapter, adapter.Match)
	}
	if llm, ok := byProvider[config.ProviderOpenAI]; ok {
		adapter := llms.NewOpenAI(adapterConfig(llm))
		d.Register(adapter, adapter.Match)
	}
	if llm, ok := byProvider[config.ProviderOllama]; ok {
		adapter := llms.NewOllama(adapterConfig(llm))
		d.Register(adapter, adapter.Match)
	}
	if d.Count() == 0 {
		return nil, fmt.Errorf("no llms configured")
	}
	return d, nil
}

func adapterConfig(llm config.LLMConfig) llms.Config {
	cfg := llms.Config{
		APIKey:     llm.APIKey,
		BaseURL:    llm.BaseURL,
		MaxTokens:  llm.MaxTokens,
		Timeout:    llm.Timeout.Duration(),
		MaxRetries: llm.MaxRetries,
	}
	if llm.Temperature != nil {
		cfg.Temperature = *llm.Temperature
	}
	return cfg
}

// buildAgents constructs all configured agents and resolves delegate
// references between them.
func buildAgents(cfg *config.Config) map[string]*agent.Agent {
	agents := make(map[string]*agent.Agent, len(cfg.Agents))
	for name, ac := range cfg.Agents {
		agents[name] = &agent.Agent{
			Name:         name,
			Description:  ac.Description,
			Instructions: ac.Instructions,
			Model:        ac.Model,
			MaxTokens:    ac.MaxTokens,
			Temperature:  ac.Temperature,
		}
	}
	for name, ac := range cfg.Agents {
		delegates := append([]string(nil), ac.Delegates...)
		sort.Strings(delegates)
		for _, delegate := range delegates {
			agents[name].Delegates = append(agents[name].Delegates, agents[delegate])
		}
	}
	return agents
}

// initRecorder builds the metrics recorder and, when enabled, serves
// the Prometheus endpoint in the background.
func initRecorder(cfg *config.Config) (observability.Recorder, error) {
	metrics, err := observability.InitMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		return observability.Noop{}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr+"/metrics")

	return metrics, nil
}
