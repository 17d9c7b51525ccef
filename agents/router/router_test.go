package router_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duyet/duyetbot-agent/agents/router"
	"github.com/duyet/duyetbot-agent/core/delivery"
	"github.com/duyet/duyetbot-agent/core/session"
)

// captureDeliverer records every delivery for assertions.
type captureDeliverer struct {
	mu       sync.Mutex
	messages []delivery.Message
	targets  []delivery.Target
	fail     bool
}

func (c *captureDeliverer) Platform() string { return "test" }

func (c *captureDeliverer) Send(ctx context.Context, target delivery.Target, msg delivery.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("delivery refused")
	}
	c.messages = append(c.messages, msg)
	c.targets = append(c.targets, target)
	return nil
}

func (c *captureDeliverer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *captureDeliverer) last() delivery.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[len(c.messages)-1]
}

type testEnv struct {
	router  *router.Router
	capture *captureDeliverer
}

// newTestEnv wires a router on a temp SQLite store with a heuristics-only
// classifier and a stubbed simple handler.
func newTestEnv(t *testing.T, executionDelay time.Duration) *testEnv {
	t.Helper()

	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"), session.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	classifier, err := router.NewClassifier(nil, router.DefaultClassifierConfig(), nil)
	require.NoError(t, err)

	dispatcher, err := router.NewDispatcher(nil)
	require.NoError(t, err)
	dispatcher.Register(router.TargetSimple, staticHandler("the answer is 4"))

	capture := &captureDeliverer{}
	registry := delivery.NewRegistry()
	registry.Register(capture)

	r := router.New(classifier, dispatcher, store, registry, router.Config{
		MaxHistory:     20,
		ExecutionDelay: executionDelay,
	}, nil)
	t.Cleanup(func() { r.Close() })

	return &testEnv{router: r, capture: capture}
}

func TestRouteEndToEnd(t *testing.T) {
	env := newTestEnv(t, time.Second)
	ctx := context.Background()

	agentCtx := router.AgentContext{ChatID: "chat-e2e", Platform: "cli"}
	result, classification := env.router.Route(ctx, "What is 2+2?", agentCtx)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Content)
	assert.Equal(t, router.ComplexityLow, classification.Complexity)

	state, err := env.router.State(ctx, "chat-e2e")
	require.NoError(t, err)
	require.Len(t, state.RoutingHistory, 1)
	assert.Equal(t, router.TargetSimple, state.RoutingHistory[0].RoutedTo)
	require.NotNil(t, state.LastClassification)
	assert.Equal(t, router.ComplexityLow, state.LastClassification.Complexity)
}

func TestRouteEmptyQuery(t *testing.T) {
	env := newTestEnv(t, time.Second)

	result, _ := env.router.Route(context.Background(), "", router.AgentContext{ChatID: "chat-empty"})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	state, err := env.router.State(context.Background(), "chat-empty")
	require.NoError(t, err)
	assert.Empty(t, state.RoutingHistory, "a rejected query leaves no history")
}

func TestRouteHistoryAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")

	open := func() (*router.Router, func()) {
		store, err := session.Open(dbPath, session.DefaultConfig())
		require.NoError(t, err)

		classifier, err := router.NewClassifier(nil, router.DefaultClassifierConfig(), nil)
		require.NoError(t, err)
		dispatcher, err := router.NewDispatcher(nil)
		require.NoError(t, err)
		dispatcher.Register(router.TargetSimple, staticHandler("ok"))

		r := router.New(classifier, dispatcher, store, delivery.NewRegistry(), router.DefaultConfig(), nil)
		return r, func() { r.Close(); store.Close() }
	}

	r1, close1 := open()
	r1.Route(context.Background(), "hello there", router.AgentContext{ChatID: "chat-p"})
	close1()

	r2, close2 := open()
	defer close2()

	state, err := r2.State(context.Background(), "chat-p")
	require.NoError(t, err)
	require.Len(t, state.RoutingHistory, 1)
	assert.Equal(t, "hello there", state.RoutingHistory[0].Query)
}

func TestScheduleExecutionRoundTrip(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond)
	ctx := context.Background()

	agentCtx := router.AgentContext{ChatID: "chat-ff", Platform: "cli"}
	target := router.ResponseTarget{Platform: "test", Destination: "chat-ff"}

	scheduled, err := env.router.ScheduleExecution(ctx, "What is 2+2?", agentCtx, target)
	require.NoError(t, err)
	assert.True(t, scheduled.Scheduled)
	assert.NotEmpty(t, scheduled.ExecutionID)

	// The record is pending until the alarm fires.
	state, err := env.router.State(ctx, "chat-ff")
	require.NoError(t, err)
	require.Len(t, state.PendingExecutions, 1)
	assert.Equal(t, scheduled.ExecutionID, state.PendingExecutions[0].ExecutionID)

	require.Eventually(t, func() bool { return env.capture.count() == 1 },
		2*time.Second, 10*time.Millisecond, "exactly one delivery after the alarm fires")

	assert.Equal(t, "the answer is 4", env.capture.last().Text)
	assert.Equal(t, "chat-ff", env.capture.targets[0].Destination)

	// Cleanup guarantee: the pending record is gone, normalized away.
	state, err = env.router.State(ctx, "chat-ff")
	require.NoError(t, err)
	assert.Nil(t, state.PendingExecutions)
}

func TestOnExecutionAlarmIdempotent(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	agentCtx := router.AgentContext{ChatID: "chat-dup", Platform: "cli"}
	target := router.ResponseTarget{Platform: "test", Destination: "chat-dup"}

	scheduled, err := env.router.ScheduleExecution(ctx, "What is 2+2?", agentCtx, target)
	require.NoError(t, err)

	env.router.OnExecutionAlarm(ctx, "chat-dup", scheduled.ExecutionID)
	env.router.OnExecutionAlarm(ctx, "chat-dup", scheduled.ExecutionID)

	assert.Equal(t, 1, env.capture.count(), "a duplicate firing is a no-op")
}

func TestOnExecutionAlarmUnknownExecution(t *testing.T) {
	env := newTestEnv(t, time.Hour)

	// Must not panic or deliver anything.
	env.router.OnExecutionAlarm(context.Background(), "chat-x", "no-such-execution")
	assert.Equal(t, 0, env.capture.count())
}

func TestScheduledFailureDeliversApology(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	ctx := context.Background()

	env.router.Dispatcher().Register(router.TargetSimple, func() router.Handler {
		return router.HandlerFunc(func(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
			return router.AgentResult{}, errors.New("llm unavailable")
		})
	})

	agentCtx := router.AgentContext{ChatID: "chat-fail", Platform: "cli"}
	scheduled, err := env.router.ScheduleExecution(ctx, "What is 2+2?", agentCtx,
		router.ResponseTarget{Platform: "test", Destination: "chat-fail"})
	require.NoError(t, err)

	env.router.OnExecutionAlarm(ctx, "chat-fail", scheduled.ExecutionID)

	require.Equal(t, 1, env.capture.count(), "failures still produce a delivery")
	assert.Contains(t, env.capture.last().Text, "Sorry")

	state, err := env.router.State(ctx, "chat-fail")
	require.NoError(t, err)
	assert.Nil(t, state.PendingExecutions, "the pending record is removed on the failure path too")
}

func TestDeliveryFailureSwallowed(t *testing.T) {
	env := newTestEnv(t, time.Hour)
	env.capture.fail = true
	ctx := context.Background()

	scheduled, err := env.router.ScheduleExecution(ctx, "What is 2+2?",
		router.AgentContext{ChatID: "chat-del", Platform: "cli"},
		router.ResponseTarget{Platform: "test", Destination: "chat-del"})
	require.NoError(t, err)

	// No panic, no retry, pending still cleaned up.
	env.router.OnExecutionAlarm(ctx, "chat-del", scheduled.ExecutionID)

	state, err := env.router.State(ctx, "chat-del")
	require.NoError(t, err)
	assert.Nil(t, state.PendingExecutions)
}

func TestRearmPendingFiresAfterRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")

	// First process schedules but never fires.
	store1, err := session.Open(dbPath, session.DefaultConfig())
	require.NoError(t, err)
	classifier1, err := router.NewClassifier(nil, router.DefaultClassifierConfig(), nil)
	require.NoError(t, err)
	dispatcher1, err := router.NewDispatcher(nil)
	require.NoError(t, err)
	dispatcher1.Register(router.TargetSimple, staticHandler("late answer"))

	r1 := router.New(classifier1, dispatcher1, store1, delivery.NewRegistry(), router.Config{
		MaxHistory:     20,
		ExecutionDelay: time.Hour,
	}, nil)

	_, err = r1.ScheduleExecution(context.Background(), "What is 2+2?",
		router.AgentContext{ChatID: "chat-r", Platform: "cli"},
		router.ResponseTarget{Platform: "test", Destination: "chat-r"})
	require.NoError(t, err)

	require.NoError(t, r1.Close())
	require.NoError(t, store1.Close())

	// Second process re-arms; the stored ScheduledAt is already due under
	// its much shorter delay, so the alarm fires immediately.
	store2, err := session.Open(dbPath, session.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })
	classifier2, err := router.NewClassifier(nil, router.DefaultClassifierConfig(), nil)
	require.NoError(t, err)
	dispatcher2, err := router.NewDispatcher(nil)
	require.NoError(t, err)
	dispatcher2.Register(router.TargetSimple, staticHandler("late answer"))

	capture := &captureDeliverer{}
	registry := delivery.NewRegistry()
	registry.Register(capture)

	r2 := router.New(classifier2, dispatcher2, store2, registry, router.Config{
		MaxHistory:     20,
		ExecutionDelay: 10 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { r2.Close() })

	require.NoError(t, r2.RearmPending(context.Background()))

	require.Eventually(t, func() bool { return capture.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "late answer", capture.last().Text)
}

func TestRouteWithTraceComposition(t *testing.T) {
	env := newTestEnv(t, time.Second)

	env.router.Dispatcher().Register(router.TargetOrchestrator, func() router.Handler {
		return router.HandlerFunc(func(ctx context.Context, query string, agentCtx router.AgentContext) (router.AgentResult, error) {
			return router.AgentResult{
				Success: true,
				Content: "done",
				Data: map[string]any{
					"subAgents": []router.RoutingStep{
						{Agent: "code-worker", DurationMs: 5},
						{Agent: "research-worker", DurationMs: 3},
					},
				},
			}, nil
		})
	})

	// Heuristically multi-step and high complexity, so it lands on the
	// orchestrator even with no LLM available.
	result, _, trace := env.router.RouteWithTrace(context.Background(),
		"clone the repo and then run the benchmarks",
		router.AgentContext{ChatID: "chat-tr", Platform: "cli"})

	require.True(t, result.Success)
	require.NotNil(t, trace)
	require.Len(t, trace.RoutingFlow, 4)
	assert.Equal(t, "router", trace.RoutingFlow[0].Agent)
	assert.Equal(t, "orchestrator", trace.RoutingFlow[1].Agent)
	assert.Equal(t, "code-worker", trace.RoutingFlow[2].Agent)
	assert.Equal(t, "research-worker", trace.RoutingFlow[3].Agent)
}

func TestConcurrentSessionsIndependent(t *testing.T) {
	env := newTestEnv(t, time.Second)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		chat := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				env.router.Route(ctx, "What is 2+2?", router.AgentContext{ChatID: chat, Platform: "cli"})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		chat := string(rune('a' + i))
		state, err := env.router.State(ctx, chat)
		require.NoError(t, err)
		assert.Len(t, state.RoutingHistory, 5, "session %s", chat)
	}
}
