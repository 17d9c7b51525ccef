// Package hitl is the human-in-the-loop handler. It never acts on the
// request itself: it records an approval request and signals the caller to
// pause via the NextAction field, the single cross-hop control signal the
// platform defines.
package hitl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duyet/duyetbot-agent/agents/router"
)

// NextActionAwaitApproval tells the caller to hold the conversation until a
// human approves or rejects the request.
const NextActionAwaitApproval = "await-approval"

// Agent holds requests that need a human decision before execution.
type Agent struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{logger: logger}
}

func (a *Agent) Execute(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
	start := time.Now()
	approvalID := uuid.New().String()

	a.logger.Info("approval requested",
		"approval_id", approvalID,
		"user", agentCtx.UserID,
		"trace_id", agentCtx.TraceID)

	return router.AgentResult{
		Success: true,
		Content: fmt.Sprintf(
			"This request needs human approval before I act on it:\n\n  %s\n\nApproval id: %s",
			query, approvalID),
		Data: map[string]any{
			"approvalId":      approvalID,
			"requestedAction": query,
			"requestedBy":     agentCtx.UserID,
		},
		DurationMs: time.Since(start).Milliseconds(),
		NextAction: NextActionAwaitApproval,
	}, nil
}
