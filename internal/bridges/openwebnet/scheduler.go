package openwebnet

import "time"

// Timer is a pending one-shot task.
type Timer interface {
	// Stop cancels the task. It returns false if the task already ran.
	Stop() bool
}

// Scheduler runs one-shot delayed tasks. Tasks run on their own goroutine
// and must re-check state before acting.
type Scheduler interface {
	Schedule(delay time.Duration, task func()) Timer
}

// timeScheduler schedules with time.AfterFunc.
type timeScheduler struct{}

func (timeScheduler) Schedule(delay time.Duration, task func()) Timer {
	return time.AfterFunc(delay, task)
}

// DefaultScheduler is the scheduler used when none is configured.
var DefaultScheduler Scheduler = timeScheduler{}

// Clock returns the current time. Replaceable in tests.
type Clock func() time.Time
