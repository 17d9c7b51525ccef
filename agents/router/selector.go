package router

// DetermineRouteTarget maps a classification to its handler kind. It is
// pure, deterministic, and total: every classification yields exactly one
// target, and anything unrecognized lands on the simple handler.
func DetermineRouteTarget(c QueryClassification) RouteTarget {
	if c.Type == "approval" || c.Category == "dangerous" {
		return TargetHITL
	}

	switch c.Category {
	case "code", "coding":
		return TargetCodeWorker
	case "vcs", "git":
		return TargetVCSWorker
	case "research":
		return TargetResearchWorker
	case "info", "status", "news":
		return TargetInfoAgent
	case "multi-step":
		return TargetOrchestrator
	}

	if c.Complexity == ComplexityHigh {
		return TargetOrchestrator
	}

	return TargetSimple
}
