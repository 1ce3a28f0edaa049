package status

import "sync/atomic"

type Status int64

const (
	Idle Status = iota
	Running
	Stopping
	Stopped
)

func (s Status) Idle() bool {
	return s == Idle
}

func (s Status) Running() bool {
	return s == Running
}

func (s Status) Stopping() bool {
	return s == Stopping
}

func (s Status) Stopped() bool {
	return s == Stopped
}

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CAP is compare and set on a shared status.
func CAP(statusPointer *Status, from, to Status) bool {
	return atomic.CompareAndSwapInt64((*int64)(statusPointer), int64(from), int64(to))
}

func Load(statusPointer *Status) Status {
	return Status(atomic.LoadInt64((*int64)(statusPointer)))
}

func Store(statusPointer *Status, to Status) {
	atomic.StoreInt64((*int64)(statusPointer), int64(to))
}
