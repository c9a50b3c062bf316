package controller

import "time"

// idleTracker mirrors crocoite's controller.py IdleStateTracker: it
// fires once the page has stayed idle (no loading frames) for the
// configured duration, restarting the wait whenever activity resumes.
type idleTracker struct {
	timeout time.Duration
	timer   *time.Timer
}

func newIdleTracker(timeout time.Duration) *idleTracker {
	t := time.NewTimer(timeout)
	return &idleTracker{timeout: timeout, timer: t}
}

// markIdle (re)starts the countdown to the idle timeout firing.
func (t *idleTracker) markIdle() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.timer.Reset(t.timeout)
}

// markBusy stops the countdown; it is restarted the next time the page
// reports idle.
func (t *idleTracker) markBusy() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
}

// fire returns the channel that receives once the page has been idle
// for timeout continuously.
func (t *idleTracker) fire() <-chan time.Time {
	return t.timer.C
}
