package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler receives the alarm's id and payload when the timer fires. Handlers
// must tolerate duplicate invocations: delivery is at-least-once, and a
// process restart re-arms any alarm that was still pending.
type Handler func(ctx context.Context, id string, payload []byte)

// Scheduler arms one-shot alarms. Scheduling an id that is already armed
// replaces the previous timer.
type Scheduler interface {
	Schedule(id string, payload []byte, delay time.Duration) error
	Cancel(id string) bool
	Close() error
}

// Timers is the in-process Scheduler. Durability comes from the caller
// persisting its own pending records and re-arming on start.
type Timers struct {
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(handler Handler, logger *slog.Logger) *Timers {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Timers{
		handler: handler,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (t *Timers) Schedule(id string, payload []byte, delay time.Duration) error {
	if id == "" {
		return fmt.Errorf("alarm id is required")
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("scheduler closed")
	}

	if prev, ok := t.timers[id]; ok {
		prev.Stop()
	}

	t.timers[id] = time.AfterFunc(delay, func() {
		t.fire(id, payload)
	})

	t.logger.Debug("alarm armed", "id", id, "delay", delay)
	return nil
}

func (t *Timers) fire(id string, payload []byte) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delete(t.timers, id)
	t.wg.Add(1)
	t.mu.Unlock()

	defer t.wg.Done()
	t.handler(t.ctx, id, payload)
}

// Cancel stops a pending alarm. Returns false when the id is unknown, which
// includes alarms that already fired.
func (t *Timers) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[id]
	if !ok {
		return false
	}

	timer.Stop()
	delete(t.timers, id)
	return true
}

// Close stops all pending alarms and waits for in-flight handlers.
func (t *Timers) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	return nil
}
