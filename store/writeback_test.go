package store

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RuiFG/teleport/common/pool"
	"github.com/RuiFG/teleport/common/status"
	"github.com/RuiFG/teleport/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(writeBack func() error) *Scheduler {
	s := newScheduler(goExecutor{}, writeBack)
	s.logger = log.Nop()
	return s
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	calls := atomic.Int64{}
	s := newTestScheduler(func() error {
		calls.Add(1)
		return nil
	})
	assert.True(t, s.State().Idle())
	require.NoError(t, s.Start(5*time.Millisecond))
	assert.True(t, s.State().Running())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 5*time.Second, time.Millisecond)
	s.Stop()
	assert.True(t, s.State().Stopped())
}

func TestSchedulerStopImmediately(t *testing.T) {
	calls := atomic.Int64{}
	s := newTestScheduler(func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, s.Start(time.Hour))

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
	assert.Equal(t, int64(0), calls.Load())
	assert.True(t, s.State().Stopped())
}

func TestSchedulerNoCycleAfterStop(t *testing.T) {
	var stopped atomic.Bool
	var late atomic.Int64
	s := newTestScheduler(func() error {
		if stopped.Load() {
			late.Add(1)
		}
		return nil
	})
	require.NoError(t, s.Start(time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	stopped.Store(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), late.Load())
}

func TestSchedulerWaitsForInflightCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s := newTestScheduler(func() error {
		close(entered)
		<-release
		finished.Store(true)
		return nil
	})
	require.NoError(t, s.Start(time.Millisecond))
	<-entered

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	assert.Eventually(t, func() bool { return s.State().Stopping() }, 5*time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("stop returned while a cycle was running")
	case <-time.After(10 * time.Millisecond):
	}
	close(release)
	<-done
	assert.True(t, finished.Load())
	assert.Equal(t, int64(1), s.Cycles())
}

func TestSchedulerSurvivesFailures(t *testing.T) {
	calls := atomic.Int64{}
	s := newTestScheduler(func() error {
		switch calls.Add(1) {
		case 1:
			return errors.New("disk full")
		case 2:
			panic("unit exploded")
		}
		return nil
	})
	require.NoError(t, s.Start(time.Millisecond))
	assert.Eventually(t, func() bool { return calls.Load() >= 4 }, 5*time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerTrigger(t *testing.T) {
	calls := make(chan struct{}, 1)
	s := newTestScheduler(func() error {
		calls <- struct{}{}
		return nil
	})
	require.NoError(t, s.Start(time.Hour))
	s.Trigger()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not run a cycle")
	}
	s.Stop()
}

func TestSchedulerStateMachine(t *testing.T) {
	s := newTestScheduler(func() error { return nil })
	assert.Error(t, s.Start(0))
	assert.True(t, s.State().Idle())

	require.NoError(t, s.Start(time.Hour))
	assert.True(t, errors.Is(s.Start(time.Hour), ErrSchedulerState))
	s.Stop()
	s.Stop()
	assert.Equal(t, status.Stopped, s.State())
	assert.True(t, errors.Is(s.Start(time.Hour), ErrSchedulerState))

	idle := newTestScheduler(func() error { return nil })
	idle.Stop()
	assert.True(t, idle.State().Stopped())
}

type blockedExecutor struct {
	mutex sync.Mutex
	tasks []func()
}

func (b *blockedExecutor) Submit(task func()) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.tasks = append(b.tasks, task)
	return nil
}

func TestSchedulerCancelsUnstartedTask(t *testing.T) {
	calls := atomic.Int64{}
	executor := &blockedExecutor{}
	s := newScheduler(executor, func() error {
		calls.Add(1)
		return nil
	})
	s.logger = log.Nop()
	require.NoError(t, s.Start(time.Millisecond))
	s.Stop()
	assert.True(t, s.State().Stopped())

	for _, task := range executor.tasks {
		task()
	}
	assert.Equal(t, int64(0), calls.Load())
}

type rejectingExecutor struct{}

func (rejectingExecutor) Submit(func()) error { return errors.New("pool closed") }

func TestSchedulerSubmitFailure(t *testing.T) {
	s := newScheduler(rejectingExecutor{}, func() error { return nil })
	s.logger = log.Nop()
	assert.Error(t, s.Start(time.Second))
	assert.True(t, s.State().Stopped())
	s.Stop()
}

func TestRegistryWriteBackOnPool(t *testing.T) {
	p, err := pool.New(1, log.Nop())
	require.NoError(t, err)
	defer p.Release()

	rec := &recorder{}
	r := NewRegistry(NewMemoryKV(), WithLogger(log.Nop()), WithExecutor(p))
	registerThree(t, r, rec, false)
	require.NoError(t, r.PostLoad())
	require.NoError(t, r.Start(time.Millisecond))
	assert.Eventually(t, func() bool { return r.Scheduler().Cycles() >= 2 }, 5*time.Second, time.Millisecond)

	require.NoError(t, r.PostUnload())
	calls := rec.snapshot()
	assert.Equal(t, []string{"alpha.unload", "beta.unload", "gamma.unload"}, calls[len(calls)-3:])
	for _, call := range calls[3 : len(calls)-3] {
		assert.Contains(t, call, ".write_back")
	}
	require.NoError(t, r.Close())
}
