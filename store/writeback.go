package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/RuiFG/teleport/common/executor"
	"github.com/RuiFG/teleport/common/safe"
	"github.com/RuiFG/teleport/common/sleep"
	"github.com/RuiFG/teleport/common/status"
	"github.com/RuiFG/teleport/log"
	"github.com/pkg/errors"
)

var (
	ErrSchedulerState = errors.New("invalid scheduler state")
)

// Executor is the thread pool boundary, the scheduler submits one long lived task.
type Executor interface {
	Submit(task func()) error
}

type goExecutor struct{}

func (goExecutor) Submit(task func()) error {
	go task()
	return nil
}

// Scheduler calls writeBack every interval on a background worker.
// Idle -> Running -> Stopping -> Stopped, a stopped scheduler can't be restarted.
type Scheduler struct {
	logger    log.Logger
	executor  Executor
	writeBack func() error

	mutex    sync.Mutex
	status   status.Status
	interval time.Duration
	abort    atomic.Bool
	sleeper  *sleep.Sleeper
	task     *executor.Executor
	cycles   atomic.Int64
}

func newScheduler(executor Executor, writeBack func() error) *Scheduler {
	return &Scheduler{
		logger:    log.Named("writeback"),
		executor:  executor,
		writeBack: writeBack,
		status:    status.Idle,
		sleeper:   sleep.New(),
	}
}

func (s *Scheduler) State() status.Status {
	return status.Load(&s.status)
}

// Cycles is the number of write back cycles run so far.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("invalid write back interval %s", interval)
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !status.CAP(&s.status, status.Idle, status.Running) {
		return errors.WithMessagef(ErrSchedulerState, "can't start a %s scheduler", s.State())
	}
	s.interval = interval
	s.task = executor.NewExecutor(s.loop)
	task := s.task
	if err := s.executor.Submit(func() { task.Exec() }); err != nil {
		task.Cancel()
		status.Store(&s.status, status.Stopped)
		return errors.WithMessage(err, "failed to submit write back task")
	}
	s.logger.Infow("write back scheduler started.", "interval", interval)
	return nil
}

// Trigger ends the current wait early so a cycle runs now.
func (s *Scheduler) Trigger() {
	if s.State().Running() {
		s.sleeper.Wake()
	}
}

// Stop signals the task and waits for it to return. An in flight cycle is
// allowed to finish, no cycle starts once the abort is observed.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	switch s.State() {
	case status.Idle:
		status.Store(&s.status, status.Stopped)
		return
	case status.Stopped:
		return
	}
	status.Store(&s.status, status.Stopping)
	s.abort.Store(true)
	s.sleeper.Wake()
	if s.task.Cancel() {
		s.logger.Debug("write back task canceled before it started.")
	}
	<-s.task.Done()
	status.Store(&s.status, status.Stopped)
	s.logger.Infow("write back scheduler stopped.", "cycles", s.Cycles())
}

func (s *Scheduler) loop() {
	for !s.abort.Load() {
		reason := s.sleeper.Sleep(s.interval)
		if s.abort.Load() {
			return
		}
		s.cycle(reason)
	}
}

func (s *Scheduler) cycle(reason sleep.Reason) {
	s.cycles.Add(1)
	if err := safe.Run(s.writeBack); err != nil {
		s.logger.Warnw("write back cycle failed.", "reason", reason.String(), "err", err)
		return
	}
	s.logger.Debugw("write back cycle done.", "reason", reason.String())
}
