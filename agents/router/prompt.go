package router

import (
	"fmt"
	"strings"
)

// classificationSystemPrompt instructs the model to answer with a single JSON
// object matching QueryClassification.
const classificationSystemPrompt = `You are a query classifier for a personal assistant platform.
Classify the user's query and respond with ONLY a JSON object, no prose:

{
  "type": "<greeting|question|task|command|approval>",
  "category": "<general|social|math|code|vcs|research|info|dangerous|multi-step>",
  "complexity": "<low|medium|high>",
  "confidence": <0.0-1.0>,
  "reasoning": "<one short sentence>"
}

Guidance:
- "low" complexity: answerable in one direct LLM response.
- "medium": needs a specialized worker (code, vcs, research, info lookup).
- "high": needs decomposition into multiple steps or human approval.
- "approval" type is reserved for destructive or production-impacting requests.`

// buildClassificationPrompt folds the recent routing history in as soft
// context ahead of the query itself.
func buildClassificationPrompt(query string, prior []RoutingHistoryEntry) string {
	var sb strings.Builder

	if len(prior) > 0 {
		sb.WriteString("Recent queries in this conversation:\n")
		for _, entry := range prior {
			fmt.Fprintf(&sb, "- %q routed to %s (%s)\n", entry.Query, entry.RoutedTo, entry.Classification)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Classify this query: %s", query)
	return sb.String()
}

// extractJSONBlock scans for the first balanced top-level JSON object in the
// model's text. Models wrap JSON in prose or code fences often enough that a
// plain Unmarshal of the whole response is not reliable.
func extractJSONBlock(text string) string {
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
