package relay

import (
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop()
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}

func TestLoopRunsPostedWork(t *testing.T) {
	l := startLoop(t)

	done := make(chan int32, 1)
	var n atomic.Int32
	l.Post(func() { n.Add(1) })
	l.Post(func() { done <- n.Add(1) })

	select {
	case v := <-done:
		if v != 2 {
			t.Fatalf("work ran out of order: %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("posted work never ran")
	}
}

func TestLoopCallWaits(t *testing.T) {
	l := startLoop(t)

	ran := false
	if !l.Call(func() { ran = true }) {
		t.Fatal("call on a live loop must succeed")
	}
	if !ran {
		t.Fatal("call returned before the work ran")
	}
}

func TestLoopCallAfterStop(t *testing.T) {
	l := NewLoop()
	go l.Run()
	l.Stop()

	if l.Call(func() { t.Error("work ran on a stopped loop") }) {
		t.Fatal("call on a stopped loop must fail")
	}
}

func TestLoopScheduleFiresOnLoop(t *testing.T) {
	l := startLoop(t)

	done := make(chan struct{})
	l.Schedule(TaskKey{Kind: TaskCloseWait}, 10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task never fired")
	}
}

func TestLoopScheduleReplacesAndCancels(t *testing.T) {
	l := startLoop(t)

	var fired atomic.Int32
	key := TaskKey{Kind: TaskStateWatchdog, Room: 1}
	l.Schedule(key, 10*time.Millisecond, func() { fired.Add(1) })
	l.Schedule(key, 20*time.Millisecond, func() { fired.Add(1) })

	other := TaskKey{Kind: TaskStateWatchdog, Room: 2}
	l.Schedule(other, 10*time.Millisecond, func() { fired.Add(1) })
	l.Cancel(other)

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired %d times, want 1 (re-arm replaces, cancel disarms)", got)
	}
}

func TestLoopSurvivesPanickingTask(t *testing.T) {
	l := startLoop(t)

	l.Post(func() { panic("boom") })
	if !l.Call(func() {}) {
		t.Fatal("loop died after a panicking task")
	}
}
