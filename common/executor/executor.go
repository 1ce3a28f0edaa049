package executor

import "sync/atomic"

const (
	pending uint32 = iota
	executed
	canceled
)

// Executor runs exec at most once, either Exec or Cancel wins and Done is
// closed afterwards in both cases.
type Executor struct {
	exec   func()
	status uint32
	done   chan struct{}
}

func (e *Executor) Cancel() bool {
	if atomic.CompareAndSwapUint32(&e.status, pending, canceled) {
		close(e.done)
		return true
	}
	return false
}

func (e *Executor) Canceled() bool {
	return atomic.LoadUint32(&e.status) == canceled
}

func (e *Executor) Executed() bool {
	return atomic.LoadUint32(&e.status) == executed
}

func (e *Executor) Exec() bool {
	if atomic.CompareAndSwapUint32(&e.status, pending, executed) {
		defer close(e.done)
		e.exec()
		return true
	}
	return false
}

func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func NewExecutor(exec func()) *Executor {
	return &Executor{
		exec:   exec,
		status: pending,
		done:   make(chan struct{}),
	}
}
