package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineRouteTargetMapping(t *testing.T) {
	tests := []struct {
		name           string
		classification QueryClassification
		want           RouteTarget
	}{
		{"low question", QueryClassification{Type: "question", Category: "general", Complexity: ComplexityLow}, TargetSimple},
		{"greeting", QueryClassification{Type: "greeting", Category: "social", Complexity: ComplexityLow}, TargetSimple},
		{"code", QueryClassification{Type: "task", Category: "code", Complexity: ComplexityMedium}, TargetCodeWorker},
		{"vcs", QueryClassification{Type: "task", Category: "vcs", Complexity: ComplexityMedium}, TargetVCSWorker},
		{"research", QueryClassification{Type: "task", Category: "research", Complexity: ComplexityMedium}, TargetResearchWorker},
		{"info", QueryClassification{Type: "question", Category: "info", Complexity: ComplexityLow}, TargetInfoAgent},
		{"approval type", QueryClassification{Type: "approval", Category: "vcs", Complexity: ComplexityHigh}, TargetHITL},
		{"dangerous category", QueryClassification{Type: "command", Category: "dangerous", Complexity: ComplexityHigh}, TargetHITL},
		{"multi-step", QueryClassification{Type: "task", Category: "multi-step", Complexity: ComplexityHigh}, TargetOrchestrator},
		{"plain high complexity", QueryClassification{Type: "task", Category: "general", Complexity: ComplexityHigh}, TargetOrchestrator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineRouteTarget(tt.classification))
		})
	}
}

// Totality: any combination of type, category, and complexity, including
// garbage values, yields exactly one valid target.
func TestDetermineRouteTargetTotal(t *testing.T) {
	types := []string{"question", "task", "command", "approval", "greeting", "", "garbage"}
	categories := []string{"general", "social", "math", "code", "vcs", "research", "info", "dangerous", "multi-step", "", "garbage"}
	complexities := []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh, Complexity(""), Complexity("bogus")}

	for _, ty := range types {
		for _, cat := range categories {
			for _, cx := range complexities {
				c := QueryClassification{Type: ty, Category: cat, Complexity: cx, Confidence: 0.5}

				first := DetermineRouteTarget(c)
				assert.True(t, first.Valid(), "target for %+v must be valid", c)
				assert.Equal(t, first, DetermineRouteTarget(c), "selector must be deterministic")
			}
		}
	}
}
