package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"claj/server/internal/packet"
)

// TaskKind distinguishes scheduled work so (kind, key) cancels in O(1).
type TaskKind uint8

const (
	TaskStateWatchdog TaskKind = iota + 1 // per room: flush pending info requesters
	TaskListWatchdog                      // per type: flush a stuck list refresh
	TaskCloseWait                         // shutdown grace period
)

// TaskKey identifies one scheduled task.
type TaskKey struct {
	Kind TaskKind
	Room uint64
	Type packet.GameType
	Conn int32
}

// Scheduler serializes relay state mutations onto one executor and owns
// the keyed timers. The production implementation is Loop; tests drive a
// synchronous fake.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(fn func())
	// Call runs fn on the loop and waits for it; returns false if the
	// loop is stopped.
	Call(fn func()) bool
	// Schedule arms (or re-arms) the task for key.
	Schedule(key TaskKey, d time.Duration, fn func())
	// Cancel disarms the task for key, if armed.
	Cancel(key TaskKey)
}

// Loop is the relay's main executor: a bounded MPSC queue drained by one
// goroutine, plus keyed timers whose callbacks run on that goroutine.
type Loop struct {
	ch      chan func()
	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool

	mu     sync.Mutex
	timers map[TaskKey]*time.Timer
}

// NewLoop returns a loop ready to Run.
func NewLoop() *Loop {
	return &Loop{
		ch:     make(chan func(), 1024),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		timers: make(map[TaskKey]*time.Timer),
	}
}

// Run drains the queue until Stop. Callbacks that panic are logged and
// dropped; the loop survives.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.ch:
			l.invoke(fn)
		case <-l.quit:
			// Drain what was queued before the stop flag.
			for {
				select {
				case fn := <-l.ch:
					l.invoke(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in loop task", "panic", r)
		}
	}()
	fn()
}

// Stop cancels all timers and ends Run after draining queued work.
func (l *Loop) Stop() {
	if !l.stopped.CompareAndSwap(false, true) {
		return
	}
	l.mu.Lock()
	for key, t := range l.timers {
		t.Stop()
		delete(l.timers, key)
	}
	l.mu.Unlock()
	close(l.quit)
	<-l.done
}

// Post queues fn; posts after Stop are dropped.
func (l *Loop) Post(fn func()) {
	if l.stopped.Load() {
		return
	}
	select {
	case l.ch <- fn:
	case <-l.quit:
	}
}

// Call runs fn on the loop and waits for completion.
func (l *Loop) Call(fn func()) bool {
	if l.stopped.Load() {
		return false
	}
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return true
	case <-l.quit:
		return false
	}
}

// Schedule arms the task for key, replacing any previous one.
func (l *Loop) Schedule(key TaskKey, d time.Duration, fn func()) {
	if l.stopped.Load() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.timers[key]; ok {
		old.Stop()
	}
	l.timers[key] = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, key)
		l.mu.Unlock()
		l.Post(fn)
	})
}

// Cancel disarms the task for key.
func (l *Loop) Cancel(key TaskKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.timers[key]; ok {
		t.Stop()
		delete(l.timers, key)
	}
}
