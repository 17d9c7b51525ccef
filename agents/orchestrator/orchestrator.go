// Package orchestrator handles high-complexity queries by decomposing them
// into sequential sub-steps and delegating each step to a registered
// specialist handler. The nested steps are reported back so the debug trace
// can show the full routing flow.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/core/providers"
)

const planningPrompt = `You are a task planner. Decompose the user's request into at most %d
sequential steps, each assigned to one of these specialists: %s.
Respond with ONLY a JSON object:

{"steps": [{"agent": "<specialist>", "task": "<what this step does>"}]}`

// Config tunes the orchestrator.
type Config struct {
	// Model used for the planning call. Empty means the provider default.
	Model string

	MaxTokens int

	// MaxSteps bounds the plan length.
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		MaxTokens: 1024,
		MaxSteps:  5,
	}
}

// Agent plans and executes multi-step queries.
type Agent struct {
	provider    providers.Provider
	subHandlers map[string]router.Handler
	config      Config
	logger      *slog.Logger
}

func New(provider providers.Provider, config Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultConfig().MaxSteps
	}
	return &Agent{
		provider:    provider,
		subHandlers: make(map[string]router.Handler),
		config:      config,
		logger:      logger,
	}
}

// RegisterSubHandler makes a specialist available to plans under name.
func (a *Agent) RegisterSubHandler(name string, h router.Handler) {
	a.subHandlers[name] = h
}

type planStep struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// Execute plans the query, runs each step through its specialist, and
// aggregates the step outputs. Nested steps are reported via
// Data["subAgents"] in execution order.
func (a *Agent) Execute(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
	start := time.Now()

	steps, err := a.plan(ctx, query)
	if err != nil {
		return router.AgentResult{}, fmt.Errorf("orchestrator plan: %w", err)
	}

	var contents []string
	var subSteps []router.RoutingStep
	tokens := 0

	for _, step := range steps {
		handler, ok := a.subHandlers[step.Agent]
		if !ok {
			a.logger.Warn("plan names unknown specialist, skipping",
				"agent", step.Agent, "trace_id", agentCtx.TraceID)
			continue
		}

		stepCtx := agentCtx.WithData("routedFrom", "orchestrator")
		stepCtx.ParentAgentID = "orchestrator"

		stepStart := time.Now()
		result, err := handler.Execute(ctx, step.Task, stepCtx)
		stepElapsed := time.Since(stepStart).Milliseconds()

		sub := router.RoutingStep{Agent: step.Agent, DurationMs: stepElapsed}
		if tools, ok := result.Data["tools"].([]string); ok {
			sub.Tools = tools
		}
		subSteps = append(subSteps, sub)

		if err != nil || !result.Success {
			contents = append(contents, fmt.Sprintf("Step %q failed.", step.Task))
			continue
		}
		contents = append(contents, result.Content)
		tokens += result.TokensUsed
	}

	if len(subSteps) == 0 {
		return router.AgentResult{}, fmt.Errorf("orchestrator: no executable steps for query")
	}

	return router.AgentResult{
		Success: true,
		Content: strings.Join(contents, "\n\n"),
		Data: map[string]any{
			"subAgents": subSteps,
			"steps":     len(subSteps),
		},
		DurationMs: time.Since(start).Milliseconds(),
		TokensUsed: tokens,
	}, nil
}

// plan asks the model for a step list and bounds it to MaxSteps.
func (a *Agent) plan(ctx context.Context, query string) ([]planStep, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("no provider configured")
	}

	specialists := make([]string, 0, len(a.subHandlers))
	for name := range a.subHandlers {
		specialists = append(specialists, name)
	}

	resp, err := a.provider.Generate(ctx, &providers.Request{
		Model:        a.config.Model,
		MaxTokens:    a.config.MaxTokens,
		SystemPrompt: fmt.Sprintf(planningPrompt, a.config.MaxSteps, strings.Join(specialists, ", ")),
		Messages:     []providers.Message{providers.UserMessage(query)},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Steps []planStep `json:"steps"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("empty plan")
	}
	if len(parsed.Steps) > a.config.MaxSteps {
		parsed.Steps = parsed.Steps[:a.config.MaxSteps]
	}

	return parsed.Steps, nil
}

// extractJSON returns the first balanced JSON object in text, since models
// wrap their output in prose or fences.
func extractJSON(text string) string {
	start := -1
	depth := 0
	for i, r := range text {
		if r == '{' {
			if start == -1 {
				start = i
			}
			depth++
			continue
		}
		if r == '}' && start != -1 {
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
