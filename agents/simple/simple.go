// Package simple is the direct single-shot LLM handler: one provider call,
// no tools, no decomposition. It is also the degradation target every
// unprovisioned route falls back to.
package simple

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/core/providers"
)

const systemPrompt = `You are a helpful personal assistant. Answer directly and concisely.`

// Config tunes the simple handler.
type Config struct {
	// Model is the primary model. Empty means the provider default.
	Model string

	// FallbackModel is tried when the primary call fails. Empty disables
	// the fallback.
	FallbackModel string

	MaxTokens   int
	Temperature float64
}

func DefaultConfig() Config {
	return Config{
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Agent answers low-complexity queries with a single provider call.
type Agent struct {
	provider providers.Provider
	config   Config
	logger   *slog.Logger
}

func New(provider providers.Provider, config Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// Execute answers the query. On a primary-model failure it retries once on
// the fallback model and reports fallbackModel in the result data.
func (a *Agent) Execute(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
	start := time.Now()

	if a.provider == nil {
		return router.AgentResult{}, fmt.Errorf("no provider configured")
	}

	resp, model, err := a.generate(ctx, query, agentCtx)
	if err != nil {
		return router.AgentResult{}, fmt.Errorf("simple handler: %w", err)
	}

	data := map[string]any{"model": resp.Model}
	if model == a.config.FallbackModel && a.config.FallbackModel != "" {
		data["fallbackModel"] = a.config.FallbackModel
	}

	return router.AgentResult{
		Success:    true,
		Content:    resp.Content,
		Data:       data,
		DurationMs: time.Since(start).Milliseconds(),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (a *Agent) generate(ctx context.Context, query string, agentCtx router.AgentContext) (*providers.Response, string, error) {
	resp, err := a.provider.Generate(ctx, a.buildRequest(query, agentCtx, a.config.Model))
	if err == nil {
		return resp, a.config.Model, nil
	}

	if a.config.FallbackModel == "" {
		return nil, "", err
	}

	a.logger.Warn("primary model failed, trying fallback",
		"model", a.config.Model, "fallback", a.config.FallbackModel, "error", err)

	resp, fallbackErr := a.provider.Generate(ctx, a.buildRequest(query, agentCtx, a.config.FallbackModel))
	if fallbackErr != nil {
		return nil, "", fmt.Errorf("primary: %w; fallback: %v", err, fallbackErr)
	}
	return resp, a.config.FallbackModel, nil
}

// buildRequest folds the forwarded conversation history in ahead of the
// query so the model keeps context across turns.
func (a *Agent) buildRequest(query string, agentCtx router.AgentContext, model string) *providers.Request {
	messages := make([]providers.Message, 0, len(agentCtx.ConversationHistory)+1)
	for _, m := range agentCtx.ConversationHistory {
		messages = append(messages, providers.Message{
			Role:    providers.Role(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, providers.UserMessage(query))

	temperature := a.config.Temperature
	return &providers.Request{
		Model:        model,
		MaxTokens:    a.config.MaxTokens,
		Temperature:  &temperature,
		SystemPrompt: systemPrompt,
		Messages:     messages,
	}
}
