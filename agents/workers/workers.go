// Package workers provides the stateless specialist handlers. A worker is a
// profile (system prompt plus tool surface) over the shared provider
// abstraction; it carries no session affinity and may run anywhere.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/core/providers"
)

// Profile describes one worker specialization.
type Profile struct {
	// Name matches the route target this worker serves.
	Name string

	// SystemPrompt frames the specialization.
	SystemPrompt string

	// Tools are the tool names this worker reports in its routing step.
	Tools []string

	// Model overrides the provider default when set.
	Model string

	MaxTokens int
}

// CodeProfile handles code writing, review, and debugging queries.
func CodeProfile() Profile {
	return Profile{
		Name: string(router.TargetCodeWorker),
		SystemPrompt: `You are a software engineering specialist. Write, review, and debug code.
Prefer complete, runnable answers with brief explanations.`,
		Tools:     []string{"read_file", "write_file", "run_tests"},
		MaxTokens: 4096,
	}
}

// ResearchProfile handles open-ended investigation queries.
func ResearchProfile() Profile {
	return Profile{
		Name: string(router.TargetResearchWorker),
		SystemPrompt: `You are a research specialist. Investigate the topic, compare sources,
and answer with a structured summary and explicit uncertainty.`,
		Tools:     []string{"web_search", "fetch_page"},
		MaxTokens: 4096,
	}
}

// VCSProfile handles version-control operations.
func VCSProfile() Profile {
	return Profile{
		Name: string(router.TargetVCSWorker),
		SystemPrompt: `You are a version-control specialist. Help with branches, commits, merges,
and pull requests. Give exact commands when applicable.`,
		Tools:     []string{"git_status", "git_diff", "git_log"},
		MaxTokens: 2048,
	}
}

// InfoProfile handles status and factual lookup queries.
func InfoProfile() Profile {
	return Profile{
		Name: string(router.TargetInfoAgent),
		SystemPrompt: `You are an information agent. Answer status and lookup queries with
current, concise facts. Say when information may be stale.`,
		Tools:     []string{"status_lookup", "web_search"},
		MaxTokens: 1024,
	}
}

// Worker executes one profile against the provider.
type Worker struct {
	provider providers.Provider
	profile  Profile
	logger   *slog.Logger
}

func New(provider providers.Provider, profile Profile, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		provider: provider,
		profile:  profile,
		logger:   logger,
	}
}

func (w *Worker) Execute(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
	start := time.Now()

	if w.provider == nil {
		return router.AgentResult{}, fmt.Errorf("worker %s: no provider configured", w.profile.Name)
	}

	messages := make([]providers.Message, 0, len(agentCtx.ConversationHistory)+1)
	for _, m := range agentCtx.ConversationHistory {
		messages = append(messages, providers.Message{
			Role:    providers.Role(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, providers.UserMessage(query))

	resp, err := w.provider.Generate(ctx, &providers.Request{
		Model:        w.profile.Model,
		MaxTokens:    w.profile.MaxTokens,
		SystemPrompt: w.profile.SystemPrompt,
		Messages:     messages,
	})
	if err != nil {
		return router.AgentResult{}, fmt.Errorf("worker %s: %w", w.profile.Name, err)
	}

	return router.AgentResult{
		Success: true,
		Content: resp.Content,
		Data: map[string]any{
			"worker": w.profile.Name,
			"tools":  w.profile.Tools,
			"model":  resp.Model,
		},
		DurationMs: time.Since(start).Milliseconds(),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
