package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	coreerrors "github.com/duyet/duyetbot-agent/core/errors"
	"github.com/duyet/duyetbot-agent/core/providers"
)

// ErrEmptyQuery is the only input the classifier rejects.
var ErrEmptyQuery = errors.New("query is empty")

// ClassifierConfig tunes the classification pipeline.
type ClassifierConfig struct {
	// Model used for the LLM-assisted pass. Empty means the provider's
	// default model.
	Model string

	// MaxTokens for the classification response.
	MaxTokens int

	// HeuristicThreshold is the heuristic confidence at or above which the
	// heuristic verdict wins without a network round trip.
	HeuristicThreshold float64

	// CacheTTL bounds how long a classification stays cached.
	CacheTTL time.Duration

	// Timeout bounds one LLM classification call.
	Timeout time.Duration

	// Retry bounds the LLM call attempts.
	Retry coreerrors.RetryPolicy
}

// DefaultClassifierConfig returns sensible defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MaxTokens:          512,
		HeuristicThreshold: 0.8,
		CacheTTL:           10 * time.Minute,
		Timeout:            10 * time.Second,
		Retry:              coreerrors.DefaultRetryPolicy(),
	}
}

// Classifier derives a QueryClassification from raw text plus bounded prior
// context. It combines a cheap rule pass with an LLM-assisted pass and is
// total: short of an empty query it always produces a classification, even
// when the provider is down.
type Classifier struct {
	provider providers.Provider
	cache    *ristretto.Cache
	config   ClassifierConfig
	logger   *slog.Logger
}

// NewClassifier builds a classifier. provider may be nil, in which case only
// the heuristic pass and the low-confidence default are available.
func NewClassifier(provider providers.Provider, config ClassifierConfig, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("classification cache: %w", err)
	}

	return &Classifier{
		provider: provider,
		cache:    cache,
		config:   config,
		logger:   logger,
	}, nil
}

// Classify produces the classification for one query. prior is the recent
// routing history used as soft context; platform names the calling surface.
func (c *Classifier) Classify(ctx context.Context, query string, prior []RoutingHistoryEntry, platform string) (QueryClassification, error) {
	if strings.TrimSpace(query) == "" {
		return QueryClassification{}, ErrEmptyQuery
	}

	cacheKey := normalizeQuery(query)
	if cached, ok := c.cache.Get(cacheKey); ok {
		if classification, ok := cached.(QueryClassification); ok {
			return classification, nil
		}
	}

	heuristic, heuristicOK := classifyHeuristically(query)
	if heuristicOK && heuristic.Confidence >= c.config.HeuristicThreshold {
		c.store(cacheKey, heuristic)
		return heuristic, nil
	}

	llm, err := c.classifyWithLLM(ctx, query, prior, platform)
	if err != nil {
		c.logger.Warn("llm classification failed, degrading",
			"error", err, "heuristic_available", heuristicOK)
		if heuristicOK {
			return heuristic, nil
		}
		return lowConfidenceDefault(), nil
	}

	c.store(cacheKey, llm)
	return llm, nil
}

// Close releases the classification cache.
func (c *Classifier) Close() {
	c.cache.Close()
}

func (c *Classifier) store(key string, classification QueryClassification) {
	c.cache.SetWithTTL(key, classification, 1, c.config.CacheTTL)
}

func (c *Classifier) classifyWithLLM(ctx context.Context, query string, prior []RoutingHistoryEntry, platform string) (QueryClassification, error) {
	if c.provider == nil {
		return QueryClassification{}, errors.New("no provider configured")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	prompt := buildClassificationPrompt(query, prior)
	if platform != "" {
		prompt += "\n(calling surface: " + platform + ")"
	}

	temperature := 0.0
	req := &providers.Request{
		Model:        c.config.Model,
		MaxTokens:    c.config.MaxTokens,
		Temperature:  &temperature,
		SystemPrompt: classificationSystemPrompt,
		Messages:     []providers.Message{providers.UserMessage(prompt)},
	}

	var resp *providers.Response
	err := coreerrors.Retry(ctx, c.config.Retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.provider.Generate(ctx, req)
		return callErr
	})
	if err != nil {
		return QueryClassification{}, fmt.Errorf("classification request: %w", err)
	}

	return parseClassification(resp.Content)
}

// parseClassification extracts and sanitizes the JSON verdict from the
// model's text.
func parseClassification(text string) (QueryClassification, error) {
	jsonStr := extractJSONBlock(text)
	if jsonStr == "" {
		return QueryClassification{}, errors.New("no JSON object in response")
	}

	var classification QueryClassification
	if err := json.Unmarshal([]byte(jsonStr), &classification); err != nil {
		return QueryClassification{}, fmt.Errorf("parse classification: %w", err)
	}

	if !classification.Complexity.Valid() {
		classification.Complexity = ComplexityMedium
	}
	if classification.Confidence < 0 {
		classification.Confidence = 0
	}
	if classification.Confidence > 1 {
		classification.Confidence = 1
	}

	return classification, nil
}

// lowConfidenceDefault is the stand-in when both the heuristic and LLM
// passes come up empty. Routing proceeds on it rather than stalling.
func lowConfidenceDefault() QueryClassification {
	return QueryClassification{
		Type:       "question",
		Category:   "general",
		Complexity: ComplexityMedium,
		Confidence: 0.1,
		Reasoning:  "classification unavailable, using default",
	}
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
