package router

import (
	"strings"

	"github.com/gobwas/glob"
)

// =============================================================================
// Heuristic Classification Pass
// =============================================================================

// heuristicRule matches queries by glob patterns or keywords and yields a
// fixed classification. A pattern hit scores the rule's pattern confidence; a
// keyword hit scores the lower keyword confidence.
type heuristicRule struct {
	name     string
	patterns []glob.Glob
	keywords []string

	queryType  string
	category   string
	complexity Complexity

	patternConfidence float64
	keywordConfidence float64
}

func compileRule(name string, patterns []string, keywords []string, queryType, category string, complexity Complexity, patternConf, keywordConf float64) heuristicRule {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, glob.MustCompile(p))
	}

	return heuristicRule{
		name:              name,
		patterns:          compiled,
		keywords:          keywords,
		queryType:         queryType,
		category:          category,
		complexity:        complexity,
		patternConfidence: patternConf,
		keywordConfidence: keywordConf,
	}
}

// defaultRules covers the query shapes cheap to recognize without an LLM.
var defaultRules = []heuristicRule{
	compileRule("greeting",
		[]string{"hi", "hi *", "hello*", "hey*", "good morning*", "good evening*", "thanks*", "thank you*"},
		nil,
		"greeting", "social", ComplexityLow, 0.95, 0),
	compileRule("dangerous-op",
		[]string{"deploy * production*", "delete all *", "drop table *", "wipe *"},
		[]string{"deploy to production", "delete everything", "force push", "drop database"},
		"approval", "dangerous", ComplexityHigh, 0.9, 0.85),
	compileRule("math",
		[]string{"what is [0-9]*", "what's [0-9]*", "calculate *", "how much is *"},
		[]string{"sum of", "multiplied by", "divided by"},
		"question", "math", ComplexityLow, 0.9, 0.7),
	compileRule("vcs",
		[]string{"git *", "* pull request*", "create a branch*", "merge *"},
		[]string{"git", "commit", "rebase", "changelog", "pull request"},
		"task", "vcs", ComplexityMedium, 0.85, 0.7),
	compileRule("coding",
		[]string{"write a function*", "write code *", "fix this code*", "implement *", "refactor *", "debug *"},
		[]string{"compile error", "stack trace", "unit test", "code review"},
		"task", "code", ComplexityMedium, 0.85, 0.65),
	compileRule("research",
		[]string{"research *", "compare * and *", "find papers *", "summarize the literature*"},
		[]string{"deep dive", "investigate", "state of the art"},
		"task", "research", ComplexityMedium, 0.85, 0.65),
	compileRule("info",
		[]string{"what's the status*", "what is the status*", "how is * doing*"},
		[]string{"weather", "news", "stock price", "uptime", "status of"},
		"question", "info", ComplexityLow, 0.85, 0.7),
	compileRule("multi-step",
		[]string{"* and then *", "plan and *"},
		[]string{"step by step", "end to end", "full pipeline"},
		"task", "multi-step", ComplexityHigh, 0.75, 0.6),
	compileRule("question",
		[]string{"what is *", "what's *", "who is *", "when did *", "when is *", "where is *", "why *", "how do *", "how does *"},
		nil,
		"question", "general", ComplexityLow, 0.85, 0),
}

// classifyHeuristically runs the rule table over the normalized query. The
// second return is false when no rule matched; the caller then decides
// between the LLM pass and a default.
func classifyHeuristically(query string) (QueryClassification, bool) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return QueryClassification{}, false
	}

	var best QueryClassification
	var found bool

	for _, rule := range defaultRules {
		confidence, ok := rule.match(normalized)
		if !ok {
			continue
		}
		if !found || confidence > best.Confidence {
			best = QueryClassification{
				Type:       rule.queryType,
				Category:   rule.category,
				Complexity: rule.complexity,
				Confidence: confidence,
				Reasoning:  "matched heuristic rule " + rule.name,
			}
			found = true
		}
	}

	return best, found
}

func (r heuristicRule) match(normalized string) (float64, bool) {
	for _, g := range r.patterns {
		if g.Match(normalized) {
			return r.patternConfidence, true
		}
	}
	for _, kw := range r.keywords {
		if strings.Contains(normalized, kw) {
			return r.keywordConfidence, true
		}
	}
	return 0, false
}
