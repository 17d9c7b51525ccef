package alarm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/duyet/duyetbot-agent/core/alarm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	fired []string
	done  chan struct{}
}

func newRecorder(expect int) *recorder {
	return &recorder{done: make(chan struct{}, expect)}
}

func (r *recorder) handle(ctx context.Context, id string, payload []byte) {
	r.mu.Lock()
	r.fired = append(r.fired, id)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire in time")
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestTimers_Fires(t *testing.T) {
	rec := newRecorder(1)
	timers := alarm.New(rec.handle, nil)
	defer timers.Close()

	require.NoError(t, timers.Schedule("a-1", []byte("payload"), 10*time.Millisecond))
	rec.wait(t)

	assert.Equal(t, 1, rec.count())
}

func TestTimers_Cancel(t *testing.T) {
	rec := newRecorder(1)
	timers := alarm.New(rec.handle, nil)
	defer timers.Close()

	require.NoError(t, timers.Schedule("a-1", nil, 100*time.Millisecond))
	assert.True(t, timers.Cancel("a-1"))
	assert.False(t, timers.Cancel("a-1"))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestTimers_RescheduleReplaces(t *testing.T) {
	rec := newRecorder(2)
	timers := alarm.New(rec.handle, nil)
	defer timers.Close()

	require.NoError(t, timers.Schedule("a-1", nil, time.Hour))
	require.NoError(t, timers.Schedule("a-1", nil, 10*time.Millisecond))
	rec.wait(t)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestTimers_EmptyID(t *testing.T) {
	timers := alarm.New(func(context.Context, string, []byte) {}, nil)
	defer timers.Close()

	assert.Error(t, timers.Schedule("", nil, time.Second))
}

func TestTimers_CloseStopsPending(t *testing.T) {
	rec := newRecorder(1)
	timers := alarm.New(rec.handle, nil)

	require.NoError(t, timers.Schedule("a-1", nil, 50*time.Millisecond))
	require.NoError(t, timers.Close())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	assert.Error(t, timers.Schedule("a-2", nil, time.Second))
}
