package router

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Classification
// =============================================================================

// Complexity is the effort class of a query.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// AllComplexities returns the three valid complexity levels.
func AllComplexities() []Complexity {
	return []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh}
}

// Valid returns true if the complexity is one of the three levels.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	default:
		return false
	}
}

// QueryClassification is the structured verdict for one query. It is a value:
// once produced it is never mutated, only replaced wholesale as the session's
// current classification.
type QueryClassification struct {
	// Type is the broad query kind (e.g. "question", "command", "coding").
	Type string `json:"type"`

	// Category is the finer-grained subject area (e.g. "math", "vcs").
	Category string `json:"category"`

	// Complexity is one of low/medium/high.
	Complexity Complexity `json:"complexity"`

	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`

	// Reasoning is a short human-readable explanation of the verdict.
	Reasoning string `json:"reasoning"`
}

// Valid reports whether the classification has a legal complexity and a
// confidence inside [0,1].
func (c QueryClassification) Valid() bool {
	return c.Complexity.Valid() && c.Confidence >= 0 && c.Confidence <= 1
}

// =============================================================================
// Route Targets
// =============================================================================

// RouteTarget is the enumerated destination handler kind for a query.
type RouteTarget string

const (
	// TargetSimple is the direct single-shot LLM handler and the fallback
	// for every unprovisioned target.
	TargetSimple RouteTarget = "simple"

	// TargetOrchestrator decomposes a query into sub-steps across workers.
	TargetOrchestrator RouteTarget = "orchestrator"

	// TargetHITL pauses for a human approval before acting.
	TargetHITL RouteTarget = "human-in-the-loop"

	// Stateless worker targets.
	TargetCodeWorker     RouteTarget = "code-worker"
	TargetResearchWorker RouteTarget = "research-worker"
	TargetVCSWorker      RouteTarget = "vcs-worker"
	TargetInfoAgent      RouteTarget = "info-agent"
)

// AllRouteTargets returns every valid route target.
func AllRouteTargets() []RouteTarget {
	return []RouteTarget{
		TargetSimple,
		TargetOrchestrator,
		TargetHITL,
		TargetCodeWorker,
		TargetResearchWorker,
		TargetVCSWorker,
		TargetInfoAgent,
	}
}

// Valid returns true if the target is part of the closed enumeration.
func (t RouteTarget) Valid() bool {
	switch t {
	case TargetSimple, TargetOrchestrator, TargetHITL,
		TargetCodeWorker, TargetResearchWorker, TargetVCSWorker, TargetInfoAgent:
		return true
	default:
		return false
	}
}

// ConversationAffine reports whether one conversation must always land on the
// same handler instance. Worker targets carry no session affinity and may run
// anywhere.
func (t RouteTarget) ConversationAffine() bool {
	switch t {
	case TargetSimple, TargetOrchestrator, TargetHITL:
		return true
	default:
		return false
	}
}

// =============================================================================
// Agent Context & Result
// =============================================================================

// HistoryMessage is one prior conversation turn forwarded to handlers.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AgentContext carries per-request metadata through every hop. It is passed
// by value: a hop may enrich Data but must never remove caller-supplied
// fields.
type AgentContext struct {
	Query               string           `json:"query"`
	UserID              string           `json:"userId,omitempty"`
	ChatID              string           `json:"chatId,omitempty"`
	Platform            string           `json:"platform,omitempty"`
	Data                map[string]any   `json:"data,omitempty"`
	ParentAgentID       string           `json:"parentAgentId,omitempty"`
	TraceID             string           `json:"traceId,omitempty"`
	ConversationHistory []HistoryMessage `json:"conversationHistory,omitempty"`
}

// WithData returns a copy of the context with key set in Data. The receiver
// is unchanged and existing keys are preserved.
func (c AgentContext) WithData(key string, value any) AgentContext {
	data := make(map[string]any, len(c.Data)+1)
	for k, v := range c.Data {
		data[k] = v
	}
	data[key] = value

	c.Data = data
	return c
}

// EnsureTraceID generates a trace id once at the entry point. An existing id
// is threaded unchanged through every hop.
func (c AgentContext) EnsureTraceID() AgentContext {
	if c.TraceID == "" {
		c.TraceID = uuid.New().String()
	}
	return c
}

// SessionKey derives the session identity for this context: the chat when
// known, otherwise the user on the platform.
func (c AgentContext) SessionKey() string {
	if c.ChatID != "" {
		return c.ChatID
	}
	return c.Platform + ":" + c.UserID
}

// AgentResult is the uniform handler outcome. NextAction is the only
// cross-hop control signal beyond success/failure.
type AgentResult struct {
	Success    bool           `json:"success"`
	Content    string         `json:"content,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
	TokensUsed int            `json:"tokensUsed,omitempty"`
	NextAction string         `json:"nextAction,omitempty"`
}

// Handler is the single typed dispatch contract every handler kind
// implements.
type Handler interface {
	Execute(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, error)

func (f HandlerFunc) Execute(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, error) {
	return f(ctx, query, agentCtx)
}

// =============================================================================
// Session State
// =============================================================================

// ResponseTarget is the opaque delivery address for a fire-and-forget
// execution: a platform name plus a platform-specific destination.
type ResponseTarget struct {
	Platform    string `json:"platform"`
	Destination string `json:"destination"`
}

// PendingExecution is the durable record of a fire-and-forget job awaiting
// its alarm. It carries everything the callback needs; the callback cannot
// rely on any call-stack state.
type PendingExecution struct {
	ExecutionID    string         `json:"executionId"`
	Query          string         `json:"query"`
	Context        AgentContext   `json:"context"`
	ResponseTarget ResponseTarget `json:"responseTarget"`
	ScheduledAt    time.Time      `json:"scheduledAt"`
}

// RoutingHistoryEntry is one line of the bounded audit trail.
type RoutingHistoryEntry struct {
	Query          string      `json:"query"`
	Classification string      `json:"classification"`
	RoutedTo       RouteTarget `json:"routedTo"`
	Timestamp      time.Time   `json:"timestamp"`
	DurationMs     int64       `json:"durationMs"`
}

// SessionState is the whole per-session record. It is owned by exactly one
// routing actor and mutated only by whole-state replacement.
type SessionState struct {
	SessionID          string                `json:"sessionId"`
	LastClassification *QueryClassification  `json:"lastClassification,omitempty"`
	RoutingHistory     []RoutingHistoryEntry `json:"routingHistory"`
	PendingExecutions  []PendingExecution    `json:"pendingExecutions,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

// NewSessionState initializes an empty state for a session key.
func NewSessionState(sessionID string) SessionState {
	now := time.Now().UTC()
	return SessionState{
		SessionID:      sessionID,
		RoutingHistory: []RoutingHistoryEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
