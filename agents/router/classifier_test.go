package router_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/core/providers"
)

// fakeProvider scripts the LLM behind the classifier.
type fakeProvider struct {
	content string
	err     error
	calls   atomic.Int64
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Content: f.content, Model: "fake-model"}, nil
}

func (f *fakeProvider) ValidateConfig() error { return nil }

func newTestClassifier(t *testing.T, provider providers.Provider) *router.Classifier {
	t.Helper()

	cfg := router.DefaultClassifierConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialDelay = 0

	c, err := router.NewClassifier(provider, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

// The classifier is total: even with the provider down, every non-empty
// query yields a valid complexity and a confidence in [0,1].
func TestClassifyTotalUnderProviderFailure(t *testing.T) {
	classifier := newTestClassifier(t, &fakeProvider{err: errors.New("provider down")})

	queries := []string{
		"What is 2+2?",
		"ponder the nature of dispatching",
		"clone the repo and then run the benchmarks",
		"git rebase my branch",
	}

	for _, q := range queries {
		got, err := classifier.Classify(context.Background(), q, nil, "cli")
		require.NoError(t, err, "classification must never propagate provider errors (query %q)", q)
		assert.True(t, got.Complexity.Valid(), "query %q", q)
		assert.GreaterOrEqual(t, got.Confidence, 0.0)
		assert.LessOrEqual(t, got.Confidence, 1.0)
	}
}

func TestClassifyLowConfidenceDefault(t *testing.T) {
	classifier := newTestClassifier(t, &fakeProvider{err: errors.New("provider down")})

	// No heuristic rule matches, the provider fails: the default stands in.
	got, err := classifier.Classify(context.Background(), "ponder the nature of dispatching", nil, "")
	require.NoError(t, err)
	assert.Equal(t, router.ComplexityMedium, got.Complexity)
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
}

func TestClassifyEmptyQuery(t *testing.T) {
	classifier := newTestClassifier(t, &fakeProvider{})

	_, err := classifier.Classify(context.Background(), "  ", nil, "")
	assert.ErrorIs(t, err, router.ErrEmptyQuery)
}

func TestClassifyHeuristicWinsAboveThreshold(t *testing.T) {
	provider := &fakeProvider{content: `{"type":"task","category":"code","complexity":"high","confidence":0.9}`}
	classifier := newTestClassifier(t, provider)

	got, err := classifier.Classify(context.Background(), "What is 2+2?", nil, "cli")
	require.NoError(t, err)

	assert.Equal(t, router.ComplexityLow, got.Complexity)
	assert.Equal(t, int64(0), provider.calls.Load(), "confident heuristic must skip the network round trip")
}

func TestClassifyUsesLLMWhenInconclusive(t *testing.T) {
	provider := &fakeProvider{content: `{"type":"task","category":"research","complexity":"medium","confidence":0.8,"reasoning":"needs sources"}`}
	classifier := newTestClassifier(t, provider)

	got, err := classifier.Classify(context.Background(), "ponder the nature of dispatching", nil, "cli")
	require.NoError(t, err)

	assert.Equal(t, "research", got.Category)
	assert.Equal(t, router.ComplexityMedium, got.Complexity)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestClassifyMalformedLLMResponseDegrades(t *testing.T) {
	provider := &fakeProvider{content: "definitely not json"}
	classifier := newTestClassifier(t, provider)

	got, err := classifier.Classify(context.Background(), "ponder the nature of dispatching", nil, "cli")
	require.NoError(t, err)
	assert.True(t, got.Valid())
	assert.InDelta(t, 0.1, got.Confidence, 1e-9)
}
