// Package sched models deferred work as cancellable scheduled tasks.
// Auto-close timers, redirect delays and reconnect backoff all run through
// it, so tests can substitute a deterministic scheduler.
package sched

import "time"

// CancelHandle cancels a pending scheduled task. Cancel is idempotent and
// safe to call after the task has fired.
type CancelHandle interface {
	Cancel()
}

// Scheduler schedules a function to run once after a delay.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelHandle
}

// New returns the wall-clock scheduler backed by time.AfterFunc.
func New() Scheduler {
	return realScheduler{}
}

type realScheduler struct{}

func (realScheduler) After(d time.Duration, fn func()) CancelHandle {
	return timerHandle{timer: time.AfterFunc(d, fn)}
}

type timerHandle struct {
	timer *time.Timer
}

func (h timerHandle) Cancel() {
	h.timer.Stop()
}
