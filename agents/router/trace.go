package router

import (
	"fmt"
	"strings"
)

// =============================================================================
// Debug Trace
// =============================================================================

// RoutingStep is one hop in the routing flow.
type RoutingStep struct {
	Agent      string   `json:"agent"`
	Tools      []string `json:"tools,omitempty"`
	DurationMs int64    `json:"durationMs,omitempty"`
}

// DebugContext is the privileged-only trace of how a query was answered. It
// is assembled after the handler returns, never speculatively, and is
// strictly additive to the plain-text answer.
type DebugContext struct {
	RoutingFlow     []RoutingStep  `json:"routingFlow"`
	TotalDurationMs int64          `json:"totalDurationMs"`
	Classification  string         `json:"classification"`
	HandlerMeta     map[string]any `json:"handlerMeta,omitempty"`
}

// buildDebugContext assembles the trace for one completed routing pass:
// the router step, the resolved target's step with any tools it reported,
// then nested sub-agent steps an orchestrator-style handler reported via
// result.Data["subAgents"].
func buildDebugContext(classification QueryClassification, target RouteTarget, result AgentResult, totalMs int64) *DebugContext {
	// A handler may self-report a duration larger than the measured total
	// (clock skew, pre-filled results); the router overhead never goes
	// negative.
	overheadMs := totalMs - result.DurationMs
	if overheadMs < 0 {
		overheadMs = 0
	}

	flow := []RoutingStep{
		{Agent: "router", DurationMs: overheadMs},
		{Agent: string(target), Tools: reportedTools(result), DurationMs: result.DurationMs},
	}
	flow = append(flow, reportedSubAgents(result)...)

	return &DebugContext{
		RoutingFlow:     flow,
		TotalDurationMs: totalMs,
		Classification:  summarizeClassification(classification),
		HandlerMeta:     handlerMeta(result),
	}
}

// Render formats the trace for a text surface.
func (d *DebugContext) Render() string {
	var sb strings.Builder

	sb.WriteString("routingFlow:")
	for _, step := range d.RoutingFlow {
		fmt.Fprintf(&sb, " -> %s", step.Agent)
		if len(step.Tools) > 0 {
			fmt.Fprintf(&sb, "[%s]", strings.Join(step.Tools, ","))
		}
	}
	fmt.Fprintf(&sb, "\nclassification: %s", d.Classification)
	fmt.Fprintf(&sb, "\ntotal: %dms", d.TotalDurationMs)

	for key, value := range d.HandlerMeta {
		fmt.Fprintf(&sb, "\n%s: %v", key, value)
	}

	return sb.String()
}

func reportedTools(result AgentResult) []string {
	raw, ok := result.Data["tools"]
	if !ok {
		return nil
	}

	switch tools := raw.(type) {
	case []string:
		return tools
	case []any:
		out := make([]string, 0, len(tools))
		for _, t := range tools {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// reportedSubAgents decodes nested steps from result.Data["subAgents"].
// Handlers report them either as typed steps or as JSON-shaped maps,
// depending on whether the result crossed a serialization boundary.
func reportedSubAgents(result AgentResult) []RoutingStep {
	raw, ok := result.Data["subAgents"]
	if !ok {
		return nil
	}

	switch subs := raw.(type) {
	case []RoutingStep:
		return subs
	case []any:
		out := make([]RoutingStep, 0, len(subs))
		for _, s := range subs {
			switch step := s.(type) {
			case RoutingStep:
				out = append(out, step)
			case map[string]any:
				out = append(out, stepFromMap(step))
			case string:
				out = append(out, RoutingStep{Agent: step})
			}
		}
		return out
	case []string:
		out := make([]RoutingStep, 0, len(subs))
		for _, name := range subs {
			out = append(out, RoutingStep{Agent: name})
		}
		return out
	default:
		return nil
	}
}

func stepFromMap(m map[string]any) RoutingStep {
	step := RoutingStep{}
	if agent, ok := m["agent"].(string); ok {
		step.Agent = agent
	}
	if dur, ok := m["durationMs"].(float64); ok {
		step.DurationMs = int64(dur)
	}
	if tools, ok := m["tools"]; ok {
		step.Tools = reportedTools(AgentResult{Data: map[string]any{"tools": tools}})
	}
	return step
}

// handlerMeta copies the handler-reported metadata, dropping the keys the
// trace already represents structurally.
func handlerMeta(result AgentResult) map[string]any {
	if len(result.Data) == 0 {
		return nil
	}

	meta := make(map[string]any, len(result.Data))
	for k, v := range result.Data {
		if k == "subAgents" || k == "tools" {
			continue
		}
		meta[k] = v
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
