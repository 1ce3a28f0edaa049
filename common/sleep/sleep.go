package sleep

import "time"

type Reason int

const (
	Timeout Reason = iota
	Woken
)

func (r Reason) String() string {
	if r == Woken {
		return "woken"
	}
	return "timeout"
}

// Sleeper is a timed wait that can be ended early by Wake. A Wake issued
// while nobody sleeps is kept and ends the next Sleep immediately.
type Sleeper struct {
	wake chan struct{}
}

func New() *Sleeper {
	return &Sleeper{wake: make(chan struct{}, 1)}
}

func (s *Sleeper) Sleep(d time.Duration) Reason {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Timeout
	case <-s.wake:
		return Woken
	}
}

func (s *Sleeper) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
