package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/duyet/duyetbot-agent/agents/hitl"
	"github.com/duyet/duyetbot-agent/agents/orchestrator"
	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/agents/simple"
	"github.com/duyet/duyetbot-agent/agents/workers"
	"github.com/duyet/duyetbot-agent/core/config"
	"github.com/duyet/duyetbot-agent/core/delivery"
	"github.com/duyet/duyetbot-agent/core/providers"
	"github.com/duyet/duyetbot-agent/core/session"
)

// app groups the wired runtime for one CLI invocation.
type app struct {
	router *router.Router
	store  *session.Store
	config *config.Config
}

func (a *app) close() {
	_ = a.router.Close()
	_ = a.store.Close()
}

// buildApp loads configuration and wires providers, handlers, delivery, and
// the routing actor.
func buildApp(ctx context.Context) (*app, error) {
	logger := slog.Default()

	manager := config.NewManager(configPath)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := manager.Watch(logger); err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}
	cfg := manager.Get()

	registry, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.Session.Path, session.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	classifierConfig := router.DefaultClassifierConfig()
	classifierConfig.HeuristicThreshold = cfg.Router.HeuristicThreshold
	classifierConfig.CacheTTL = cfg.Router.CacheTTL
	classifierConfig.Retry.MaxAttempts = cfg.LLM.MaxRetries

	provider, _ := registry.Default()

	classifier, err := router.NewClassifier(provider, classifierConfig, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	dispatcher, err := router.NewDispatcher(logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	registerHandlers(dispatcher, provider, logger)

	deliveryRegistry := delivery.NewRegistry()
	deliveryRegistry.Register(delivery.NewConsoleDeliverer(os.Stdout))

	routerConfig := router.Config{
		MaxHistory:     cfg.Router.MaxHistory,
		ExecutionDelay: cfg.Router.ExecutionDelay,
	}
	r := router.New(classifier, dispatcher, store, deliveryRegistry, routerConfig, logger)

	if err := r.RearmPending(ctx); err != nil {
		logger.Warn("could not re-arm pending executions", "error", err)
	}

	return &app{router: r, store: store, config: cfg}, nil
}

// buildProviders registers every provider with a configured API key. A
// missing default provider is not fatal: the router still works on
// heuristics and static fallbacks.
func buildProviders(ctx context.Context, cfg *config.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	logger := slog.Default()

	if cfg.LLM.Anthropic.APIKey != "" {
		if err := registry.RegisterAnthropic(anthropicConfig(cfg)); err != nil {
			logger.Warn("anthropic provider unavailable", "error", err)
		}
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		if err := registry.RegisterOpenAI(openAIConfig(cfg)); err != nil {
			logger.Warn("openai provider unavailable", "error", err)
		}
	}
	if cfg.LLM.Google.APIKey != "" {
		if err := registry.RegisterGoogle(ctx, googleConfig(cfg)); err != nil {
			logger.Warn("google provider unavailable", "error", err)
		}
	}

	if err := registry.SetDefault(providers.ProviderType(cfg.LLM.DefaultProvider)); err != nil {
		logger.Warn("default provider not registered, using first available",
			"wanted", cfg.LLM.DefaultProvider)
	}

	return registry, nil
}

func anthropicConfig(cfg *config.Config) providers.AnthropicConfig {
	out := providers.DefaultAnthropicConfig()
	applyProviderConfig(&out.BaseConfig, cfg.LLM.Anthropic, cfg)
	return out
}

func openAIConfig(cfg *config.Config) providers.OpenAIConfig {
	out := providers.DefaultOpenAIConfig()
	applyProviderConfig(&out.BaseConfig, cfg.LLM.OpenAI, cfg)
	return out
}

func googleConfig(cfg *config.Config) providers.GoogleConfig {
	out := providers.DefaultGoogleConfig()
	applyProviderConfig(&out.BaseConfig, cfg.LLM.Google, cfg)
	return out
}

func applyProviderConfig(base *providers.BaseConfig, pc config.ProviderConfig, cfg *config.Config) {
	base.APIKey = pc.APIKey
	base.Timeout = cfg.LLM.Timeout
	if pc.Model != "" {
		base.Model = pc.Model
	}
	if pc.MaxTokens > 0 {
		base.MaxTokens = pc.MaxTokens
	}
	if pc.Temperature > 0 {
		base.Temperature = pc.Temperature
	}
}

// registerHandlers provisions every route target on the dispatcher.
func registerHandlers(dispatcher *router.Dispatcher, provider providers.Provider, logger *slog.Logger) {
	dispatcher.Register(router.TargetSimple, func() router.Handler {
		return simple.New(provider, simple.DefaultConfig(), logger)
	})

	profiles := map[router.RouteTarget]workers.Profile{
		router.TargetCodeWorker:     workers.CodeProfile(),
		router.TargetResearchWorker: workers.ResearchProfile(),
		router.TargetVCSWorker:      workers.VCSProfile(),
		router.TargetInfoAgent:      workers.InfoProfile(),
	}
	for target, profile := range profiles {
		profile := profile
		dispatcher.Register(target, func() router.Handler {
			return workers.New(provider, profile, logger)
		})
	}

	dispatcher.Register(router.TargetOrchestrator, func() router.Handler {
		orch := orchestrator.New(provider, orchestrator.DefaultConfig(), logger)
		for _, profile := range profiles {
			orch.RegisterSubHandler(profile.Name, workers.New(provider, profile, logger))
		}
		return orch
	})

	dispatcher.Register(router.TargetHITL, func() router.Handler {
		return hitl.New(logger)
	})
}
