package controller

import (
	"testing"
	"time"
)

func TestIdleTrackerFiresAfterTimeout(t *testing.T) {
	tr := newIdleTracker(20 * time.Millisecond)
	tr.markIdle()
	select {
	case <-tr.fire():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("idleTracker did not fire within the expected window")
	}
}

func TestIdleTrackerResetsOnBusy(t *testing.T) {
	tr := newIdleTracker(30 * time.Millisecond)
	tr.markIdle()
	time.Sleep(15 * time.Millisecond)
	tr.markBusy()

	select {
	case <-tr.fire():
		t.Fatal("idleTracker fired after markBusy reset the countdown")
	case <-time.After(20 * time.Millisecond):
	}
}
