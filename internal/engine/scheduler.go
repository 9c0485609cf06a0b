package engine

import "time"

// Timer is a single pending scheduled call.
type Timer interface {
	// Stop cancels the pending call. It reports whether the call was
	// still pending (and is now cancelled).
	Stop() bool
}

// Scheduler schedules one-shot deferred calls. The indirection exists
// so tests can drive debounce behavior deterministically instead of
// sleeping on real timers.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

// NewScheduler returns the production scheduler backed by the runtime
// timer wheel.
func NewScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) Schedule(d time.Duration, fn func()) Timer {
	return realTimer{timer: time.AfterFunc(d, fn)}
}

type realTimer struct {
	timer *time.Timer
}

func (t realTimer) Stop() bool {
	return t.timer.Stop()
}
