package scraper

import (
	"errors"
	"time"
)

// ErrDeadlineExceeded signals that a task ran out of its time budget. The
// caller classifies it as a temporary failure.
var ErrDeadlineExceeded = errors.New("task deadline exceeded")

// Clock is a monotonic time source. Injectable so deadline behavior is
// testable without sleeping.
type Clock func() time.Time

// Deadline is a cooperative per-task time budget. Checkpoints call Exceeded
// between steps; everything the task does, including challenge waits, draws
// from the same budget.
type Deadline struct {
	start  time.Time
	budget time.Duration
	now    Clock
}

func NewDeadline(budget time.Duration, now Clock) *Deadline {
	if now == nil {
		now = time.Now
	}
	return &Deadline{start: now(), budget: budget, now: now}
}

func (d *Deadline) Exceeded() bool {
	return d.now().Sub(d.start) > d.budget
}

func (d *Deadline) Elapsed() time.Duration {
	return d.now().Sub(d.start)
}

func (d *Deadline) Remaining() time.Duration {
	r := d.budget - d.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}
