package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duyet/duyetbot-agent/core/delivery"
)

// =============================================================================
// Fire-and-Forget Execution
// =============================================================================

// ScheduledExecution acknowledges a fire-and-forget request.
type ScheduledExecution struct {
	ExecutionID string `json:"executionId"`
	Scheduled   bool   `json:"scheduled"`
}

// alarmPayload is the durable data an execution alarm carries. The callback
// may run on a process that never saw the original call, so everything it
// needs beyond this is in the persisted PendingExecution.
type alarmPayload struct {
	SessionID   string `json:"sessionId"`
	ExecutionID string `json:"executionId"`
}

const apologyText = "Sorry, I wasn't able to complete your request. Please try again."

// ScheduleExecution accepts a query for deferred processing: it persists a
// PendingExecution in the session state, arms a one-shot alarm, and returns
// immediately without waiting for the work.
func (r *Router) ScheduleExecution(ctx context.Context, query string, agentCtx AgentContext, responseTarget ResponseTarget) (ScheduledExecution, error) {
	agentCtx = agentCtx.EnsureTraceID()
	if agentCtx.Query == "" {
		agentCtx.Query = query
	}

	sessionKey := agentCtx.SessionKey()
	mu := r.sessionLock(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	state, err := r.loadState(ctx, sessionKey)
	if err != nil {
		return ScheduledExecution{}, fmt.Errorf("schedule execution: %w", err)
	}

	pending := PendingExecution{
		ExecutionID:    uuid.New().String(),
		Query:          query,
		Context:        agentCtx,
		ResponseTarget: responseTarget,
		ScheduledAt:    time.Now().UTC(),
	}
	state.PendingExecutions = append(state.PendingExecutions, pending)

	if err := r.saveState(ctx, state); err != nil {
		return ScheduledExecution{}, fmt.Errorf("schedule execution: %w", err)
	}

	if err := r.armAlarm(sessionKey, pending.ExecutionID, r.config.ExecutionDelay); err != nil {
		return ScheduledExecution{}, fmt.Errorf("schedule execution: %w", err)
	}

	r.logger.Info("execution scheduled",
		"session", sessionKey,
		"execution_id", pending.ExecutionID,
		"delay", r.config.ExecutionDelay,
		"trace_id", agentCtx.TraceID)

	return ScheduledExecution{ExecutionID: pending.ExecutionID, Scheduled: true}, nil
}

func (r *Router) armAlarm(sessionID, executionID string, delay time.Duration) error {
	payload, err := json.Marshal(alarmPayload{SessionID: sessionID, ExecutionID: executionID})
	if err != nil {
		return err
	}
	return r.alarms.Schedule(executionID, payload, delay)
}

func (r *Router) handleAlarm(ctx context.Context, id string, payload []byte) {
	var p alarmPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		r.logger.Error("malformed alarm payload", "alarm_id", id, "error", err)
		return
	}
	r.OnExecutionAlarm(ctx, p.SessionID, p.ExecutionID)
}

// OnExecutionAlarm runs a scheduled execution when its alarm fires. The
// alarm primitive is at-least-once: a firing whose PendingExecution is
// already gone is a logged no-op, never an error. On every other path the
// pending record is removed exactly once, the answer (or a best-effort
// apology) is delivered, and no failure escapes the alarm boundary.
func (r *Router) OnExecutionAlarm(ctx context.Context, sessionID, executionID string) {
	mu := r.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state, err := r.loadState(ctx, sessionID)
	if err != nil {
		r.logger.Error("alarm session load failed",
			"session", sessionID, "execution_id", executionID, "error", err)
		return
	}

	pending, remaining, found := takePending(state.PendingExecutions, executionID)
	if !found {
		r.logger.Debug("alarm for unknown execution, ignoring",
			"session", sessionID, "execution_id", executionID)
		return
	}
	state.PendingExecutions = remaining

	result, debug := r.executePending(ctx, pending, &state)

	if err := r.saveState(ctx, state); err != nil {
		r.logger.Error("alarm session save failed",
			"session", sessionID, "execution_id", executionID, "error", err)
	}

	r.deliverResult(ctx, pending, result, debug)
}

// executePending runs the full pipeline for a stored execution, converting
// any panic into a failed result so the pending record is still cleaned up
// and the caller still hears back.
func (r *Router) executePending(ctx context.Context, pending PendingExecution, state *SessionState) (result AgentResult, debug *DebugContext) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("scheduled execution panicked",
				"execution_id", pending.ExecutionID, "panic", rec)
			result = AgentResult{Success: false, Error: fmt.Sprintf("execution panic: %v", rec)}
			debug = nil
		}
	}()

	res, classification, target, totalMs := r.runPipeline(ctx, pending.Query, pending.Context, state)
	return res, buildDebugContext(classification, target, res, totalMs)
}

// deliverResult sends the final answer through the delivery registry. A
// failed result becomes a generic apology on the same channel a success
// would use; a delivery failure is logged, not retried.
func (r *Router) deliverResult(ctx context.Context, pending PendingExecution, result AgentResult, debug *DebugContext) {
	text := result.Content
	if !result.Success || text == "" {
		text = apologyText
	}

	msg := delivery.Message{Text: text}
	if debug != nil && wantsDebug(pending.Context) {
		msg.Debug = debug.Render()
	}

	target := delivery.Target{
		Platform:    pending.ResponseTarget.Platform,
		Destination: pending.ResponseTarget.Destination,
	}

	if err := r.delivery.Send(ctx, target, msg); err != nil {
		r.logger.Error("delivery failed",
			"execution_id", pending.ExecutionID,
			"platform", target.Platform,
			"error", err)
	}
}

// RearmPending re-arms an alarm for every persisted pending execution, so
// fire-and-forget work survives a restart with at-least-once semantics.
func (r *Router) RearmPending(ctx context.Context) error {
	refs, err := r.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("rearm pending: %w", err)
	}

	for _, ref := range refs {
		delay := time.Until(ref.ScheduledAt.Add(r.config.ExecutionDelay))
		if delay < 0 {
			delay = 0
		}
		if err := r.armAlarm(ref.SessionID, ref.ExecutionID, delay); err != nil {
			return fmt.Errorf("rearm %s: %w", ref.ExecutionID, err)
		}
		r.logger.Info("execution re-armed",
			"session", ref.SessionID, "execution_id", ref.ExecutionID, "delay", delay)
	}

	return nil
}

func takePending(pending []PendingExecution, executionID string) (PendingExecution, []PendingExecution, bool) {
	for i, p := range pending {
		if p.ExecutionID == executionID {
			remaining := make([]PendingExecution, 0, len(pending)-1)
			remaining = append(remaining, pending[:i]...)
			remaining = append(remaining, pending[i+1:]...)
			return p, remaining, true
		}
	}
	return PendingExecution{}, pending, false
}

// wantsDebug reports whether the caller asked for the privileged trace.
func wantsDebug(agentCtx AgentContext) bool {
	v, ok := agentCtx.Data["debug"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
