package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/duyet/duyetbot-agent/core/alarm"
	"github.com/duyet/duyetbot-agent/core/delivery"
	"github.com/duyet/duyetbot-agent/core/session"
)

// =============================================================================
// Router
// =============================================================================

// Config tunes the routing actor.
type Config struct {
	// MaxHistory bounds the per-session routing history FIFO.
	MaxHistory int

	// ExecutionDelay is how long after scheduling a fire-and-forget
	// execution fires.
	ExecutionDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxHistory:     20,
		ExecutionDelay: 5 * time.Second,
	}
}

// Router is the orchestration core: it classifies a query, selects a route
// target, dispatches to a handler, and maintains the session's durable
// state. Each session key is served by a single writer; all state reads and
// writes for one session are serialized, while distinct sessions proceed
// fully concurrently.
type Router struct {
	classifier *Classifier
	dispatcher *Dispatcher
	store      *session.Store
	delivery   *delivery.Registry
	alarms     alarm.Scheduler
	config     Config
	logger     *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wires the routing actor together. The router owns its alarm scheduler;
// call RearmPending after construction to recover fire-and-forget executions
// persisted before a restart, and Close on shutdown.
func New(classifier *Classifier, dispatcher *Dispatcher, store *session.Store, deliveryRegistry *delivery.Registry, config Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = DefaultConfig().MaxHistory
	}

	r := &Router{
		classifier: classifier,
		dispatcher: dispatcher,
		store:      store,
		delivery:   deliveryRegistry,
		config:     config,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
	r.alarms = alarm.New(r.handleAlarm, logger)

	return r
}

// Dispatcher exposes the dispatcher for handler registration.
func (r *Router) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// Close stops pending alarms and releases the classifier cache.
func (r *Router) Close() error {
	err := r.alarms.Close()
	r.classifier.Close()
	return err
}

// Route answers a query synchronously: classify, select, dispatch, then
// append the routing history and replace the session state. The returned
// classification is always populated except for an empty query, the single
// rejected input.
func (r *Router) Route(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, QueryClassification) {
	result, classification, _, _ := r.routeLocked(ctx, query, agentCtx)
	return result, classification
}

// RouteWithTrace is Route plus the assembled debug trace, for privileged
// callers.
func (r *Router) RouteWithTrace(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, QueryClassification, *DebugContext) {
	result, classification, target, totalMs := r.routeLocked(ctx, query, agentCtx)
	return result, classification, buildDebugContext(classification, target, result, totalMs)
}

// State returns the current session record for a session key.
func (r *Router) State(ctx context.Context, sessionKey string) (SessionState, error) {
	mu := r.sessionLock(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	return r.loadState(ctx, sessionKey)
}

// routeLocked serializes one routing pass under the session's lock.
func (r *Router) routeLocked(ctx context.Context, query string, agentCtx AgentContext) (AgentResult, QueryClassification, RouteTarget, int64) {
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
		// Routing proceeds on a fresh in-memory state rather than stalling
		// on a storage fault.
		r.logger.Error("session load failed", "session", sessionKey, "error", err)
		state = NewSessionState(sessionKey)
	}

	result, classification, target, totalMs := r.runPipeline(ctx, query, agentCtx, &state)

	if err := r.saveState(ctx, state); err != nil {
		r.logger.Error("session save failed", "session", sessionKey, "error", err)
	}

	return result, classification, target, totalMs
}

// runPipeline does classify -> select -> dispatch and folds the outcome into
// state. The caller holds the session lock and persists state afterwards.
func (r *Router) runPipeline(ctx context.Context, query string, agentCtx AgentContext, state *SessionState) (AgentResult, QueryClassification, RouteTarget, int64) {
	start := time.Now()

	classification, err := r.classifier.Classify(ctx, query, historyWindow(state.RoutingHistory), agentCtx.Platform)
	if err != nil {
		return AgentResult{
			Success:    false,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}, QueryClassification{}, TargetSimple, time.Since(start).Milliseconds()
	}

	target := DetermineRouteTarget(classification)
	result := r.dispatcher.Dispatch(ctx, target, query, agentCtx, classification)
	elapsed := time.Since(start)

	// lastClassification reflects the most recent verdict regardless of the
	// routing outcome.
	state.LastClassification = &classification
	state.RoutingHistory = appendHistory(state.RoutingHistory,
		newHistoryEntry(query, classification, target, elapsed), r.config.MaxHistory)

	r.logger.Info("query routed",
		"session", state.SessionID,
		"target", target,
		"complexity", classification.Complexity,
		"confidence", classification.Confidence,
		"success", result.Success,
		"duration_ms", elapsed.Milliseconds(),
		"trace_id", agentCtx.TraceID)

	return result, classification, target, elapsed.Milliseconds()
}

// =============================================================================
// Session state persistence
// =============================================================================

func (r *Router) sessionLock(key string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	return mu
}

func (r *Router) loadState(ctx context.Context, sessionKey string) (SessionState, error) {
	raw, ok, err := r.store.Load(ctx, sessionKey)
	if err != nil {
		return SessionState{}, err
	}
	if !ok {
		return NewSessionState(sessionKey), nil
	}

	var state SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return SessionState{}, fmt.Errorf("decode session %s: %w", sessionKey, err)
	}
	return state, nil
}

// saveState replaces the whole session record. An empty pending list is
// normalized to unset so persisted state stays minimal.
func (r *Router) saveState(ctx context.Context, state SessionState) error {
	if len(state.PendingExecutions) == 0 {
		state.PendingExecutions = nil
	}
	state.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.SessionID, err)
	}

	refs := make([]session.PendingRef, 0, len(state.PendingExecutions))
	for _, p := range state.PendingExecutions {
		refs = append(refs, session.PendingRef{
			SessionID:   state.SessionID,
			ExecutionID: p.ExecutionID,
			ScheduledAt: p.ScheduledAt,
		})
	}

	return r.store.Replace(ctx, state.SessionID, raw, refs)
}
