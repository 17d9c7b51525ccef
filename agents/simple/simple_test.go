package simple_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/agents/simple"
	"github.com/duyet/duyetbot-agent/core/providers"
)

// scriptedProvider fails for the models listed in failFor.
type scriptedProvider struct {
	failFor  map[string]bool
	requests []*providers.Request
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	s.requests = append(s.requests, req)
	if s.failFor[req.Model] {
		return nil, errors.New("model overloaded")
	}
	return &providers.Response{
		Content: "answer from " + req.Model,
		Model:   req.Model,
		Usage:   providers.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *scriptedProvider) ValidateConfig() error { return nil }

func TestExecuteAnswers(t *testing.T) {
	provider := &scriptedProvider{}
	cfg := simple.DefaultConfig()
	cfg.Model = "primary"

	agent := simple.New(provider, cfg, nil)
	result, err := agent.Execute(context.Background(), "What is 2+2?", router.AgentContext{ChatID: "c1"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "answer from primary", result.Content)
	assert.Equal(t, 15, result.TokensUsed)
	assert.NotContains(t, result.Data, "fallbackModel")
}

func TestExecuteFallbackModel(t *testing.T) {
	provider := &scriptedProvider{failFor: map[string]bool{"primary": true}}
	cfg := simple.DefaultConfig()
	cfg.Model = "primary"
	cfg.FallbackModel = "backup"

	agent := simple.New(provider, cfg, nil)
	result, err := agent.Execute(context.Background(), "hello", router.AgentContext{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "answer from backup", result.Content)
	assert.Equal(t, "backup", result.Data["fallbackModel"])
}

func TestExecuteBothModelsFail(t *testing.T) {
	provider := &scriptedProvider{failFor: map[string]bool{"primary": true, "backup": true}}
	cfg := simple.DefaultConfig()
	cfg.Model = "primary"
	cfg.FallbackModel = "backup"

	agent := simple.New(provider, cfg, nil)
	_, err := agent.Execute(context.Background(), "hello", router.AgentContext{})

	assert.Error(t, err)
}

func TestExecuteForwardsConversationHistory(t *testing.T) {
	provider := &scriptedProvider{}
	agent := simple.New(provider, simple.DefaultConfig(), nil)

	agentCtx := router.AgentContext{
		ConversationHistory: []router.HistoryMessage{
			{Role: "user", Content: "my name is Duyet"},
			{Role: "assistant", Content: "nice to meet you"},
		},
	}

	_, err := agent.Execute(context.Background(), "what's my name?", agentCtx)
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	messages := provider.requests[0].Messages
	require.Len(t, messages, 3)
	assert.Equal(t, "my name is Duyet", messages[0].Content)
	assert.Equal(t, "what's my name?", messages[2].Content)
}

func TestExecuteNoProvider(t *testing.T) {
	agent := simple.New(nil, simple.DefaultConfig(), nil)

	_, err := agent.Execute(context.Background(), "hello", router.AgentContext{})
	assert.Error(t, err)
}
