package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"wrapped in prose", "Sure! Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"no object", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONBlock(tt.text))
		})
	}
}

func TestParseClassificationSanitizes(t *testing.T) {
	got, err := parseClassification(`{"type":"task","category":"code","complexity":"extreme","confidence":1.7,"reasoning":"x"}`)
	require.NoError(t, err)

	assert.Equal(t, ComplexityMedium, got.Complexity, "invalid complexity resets to medium")
	assert.Equal(t, 1.0, got.Confidence, "confidence clamps to [0,1]")
}

func TestParseClassificationRejectsNonJSON(t *testing.T) {
	_, err := parseClassification("the query looks simple to me")
	assert.Error(t, err)
}

func TestBuildClassificationPromptIncludesPrior(t *testing.T) {
	prior := []RoutingHistoryEntry{
		{Query: "fix the build", RoutedTo: TargetCodeWorker, Classification: "medium/task/code"},
	}

	prompt := buildClassificationPrompt("and now run the tests", prior)
	assert.Contains(t, prompt, "fix the build")
	assert.Contains(t, prompt, "code-worker")
	assert.Contains(t, prompt, "and now run the tests")

	bare := buildClassificationPrompt("hello", nil)
	assert.NotContains(t, bare, "Recent queries")
}
