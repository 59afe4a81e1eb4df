package executor

import "github.com/contextbridge/backend/internal/shared/sched"

// CancelHandle and Scheduler are re-exported so callers configuring the
// executor need not import the sched package directly.
type (
	CancelHandle = sched.CancelHandle
	Scheduler    = sched.Scheduler
)

// NewScheduler returns the wall-clock scheduler.
func NewScheduler() Scheduler {
	return sched.New()
}
