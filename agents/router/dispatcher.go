package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Dispatcher
// =============================================================================

// HandlerFactory builds a handler instance for one target.
type HandlerFactory func() Handler

// DefaultAffineCacheSize bounds how many conversation-bound handler
// instances stay live at once.
const DefaultAffineCacheSize = 256

// Dispatcher resolves and invokes one handler per route target.
// Conversation-affine targets keep one handler instance per chat, resolved
// through an LRU; stateless worker targets get a fresh instance per call and
// may run with unbounded concurrency.
type Dispatcher struct {
	mu        sync.RWMutex
	factories map[RouteTarget]HandlerFactory

	affineMu sync.Mutex
	affine   *lru.Cache[string, Handler]

	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	affine, err := lru.New[string, Handler](DefaultAffineCacheSize)
	if err != nil {
		return nil, fmt.Errorf("affine handler cache: %w", err)
	}

	return &Dispatcher{
		factories: make(map[RouteTarget]HandlerFactory),
		affine:    affine,
		logger:    logger,
	}, nil
}

// Register provisions a handler factory for a target, replacing any previous
// registration.
func (d *Dispatcher) Register(target RouteTarget, factory HandlerFactory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.factories[target] = factory
}

// Provisioned reports whether a target has a registered handler.
func (d *Dispatcher) Provisioned(target RouteTarget) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.factories[target]
	return ok
}

// Dispatch invokes the handler for target. It never returns a Go error or
// panics outward: handler failures become a failed AgentResult, and an
// unprovisioned target degrades to the simple handler, then to a builtin
// static response. The context's conversation history is always forwarded
// and Data gains a routedFrom tag for traceability.
func (d *Dispatcher) Dispatch(ctx context.Context, target RouteTarget, query string, agentCtx AgentContext, classification QueryClassification) AgentResult {
	agentCtx = agentCtx.WithData("routedFrom", "router")

	handler, resolved := d.resolve(target, agentCtx)
	if resolved != target {
		d.logger.Warn("target unprovisioned, degrading",
			"target", target, "fallback", resolved, "trace_id", agentCtx.TraceID)
	}
	if handler == nil {
		return d.staticFallback(query, time.Now())
	}

	return d.invoke(ctx, handler, query, agentCtx)
}

// resolve walks the fallback chain: the requested target, then the simple
// handler. The returned target names which registration actually served.
func (d *Dispatcher) resolve(target RouteTarget, agentCtx AgentContext) (Handler, RouteTarget) {
	if h := d.handlerFor(target, agentCtx); h != nil {
		return h, target
	}
	if target != TargetSimple {
		if h := d.handlerFor(TargetSimple, agentCtx); h != nil {
			return h, TargetSimple
		}
	}
	return nil, TargetSimple
}

func (d *Dispatcher) handlerFor(target RouteTarget, agentCtx AgentContext) Handler {
	d.mu.RLock()
	factory, ok := d.factories[target]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	if !target.ConversationAffine() || agentCtx.ChatID == "" {
		return factory()
	}

	key := string(target) + ":" + agentCtx.ChatID

	d.affineMu.Lock()
	defer d.affineMu.Unlock()

	if h, ok := d.affine.Get(key); ok {
		return h
	}
	h := factory()
	d.affine.Add(key, h)
	return h
}

// invoke runs the handler behind a recover so no exception crosses the
// dispatch boundary.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, query string, agentCtx AgentContext) (result AgentResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"panic", r, "trace_id", agentCtx.TraceID)
			result = AgentResult{
				Success:    false,
				Error:      fmt.Sprintf("handler panic: %v", r),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
	}()

	res, err := handler.Execute(ctx, query, agentCtx)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return AgentResult{
			Success:    false,
			Error:      err.Error(),
			DurationMs: elapsed,
		}
	}

	if res.DurationMs == 0 {
		res.DurationMs = elapsed
	}
	return res
}

// staticFallback answers when even the simple handler is unprovisioned, so
// the system stays answer-capable under partial deployment.
func (d *Dispatcher) staticFallback(query string, start time.Time) AgentResult {
	return AgentResult{
		Success:    true,
		Content:    "I received your request but no handler is available right now. Please try again shortly.",
		Data:       map[string]any{"fallback": "static"},
		DurationMs: time.Since(start).Milliseconds(),
	}
}
