package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel prevents the callback from running if it has not run yet.
	Cancel()
}

// Scheduler serializes callbacks onto a single logical thread. Every
// callback posted or scheduled through it runs on that thread, one at a
// time.
type Scheduler interface {
	Post(fn func())
	After(d time.Duration, fn func()) Task
	Now() time.Time
}

// Loop is the production Scheduler: an unbounded FIFO of callbacks drained
// by Run. Posting never blocks, including from inside a callback.
type Loop struct {
	mu    sync.Mutex
	queue deque.Deque[func()]
	wake  chan struct{}
}

// NewLoop returns an idle Loop. Callbacks queue up until Run is called.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue.PushBack(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After runs fn on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, fn func()) Task {
	t := &timerTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time { return time.Now() }

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Run drains callbacks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		fn, ok := l.next()
		if ok {
			fn()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queue.Len() == 0 {
		return nil, false
	}
	return l.queue.PopFront(), true
}

type timerTask struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *timerTask) Cancel() {
	t.cancelled.Store(true)
	t.timer.Stop()
}
