// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-memory api.Engine for deterministic loop tests: readiness is injected by
// the test instead of coming from the kernel.

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-ev/api"
)

// Engine is a fake implementation of api.Engine. Injected readiness is
// delivered once, on the next Poll, and only for watched descriptors.
type Engine struct {
	mu       sync.Mutex
	watched  map[int]api.IOEvents
	pending  []api.Readiness
	deadline time.Time
	wake     chan struct{}
	closed   bool
	polls    int
	wakes    int

	watchErr error
	pollErr  error
}

// NewEngine creates a new fake engine.
func NewEngine() *Engine {
	return &Engine{
		watched: make(map[int]api.IOEvents),
		wake:    make(chan struct{}, 1),
	}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Watch(fd int, events api.IOEvents) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watchErr != nil {
		return e.watchErr
	}
	e.watched[fd] = events
	return nil
}

func (e *Engine) Unwatch(fd int) error {
	e.mu.Lock()
	delete(e.watched, fd)
	e.mu.Unlock()
	return nil
}

func (e *Engine) ArmTimer(deadline time.Time) error {
	e.mu.Lock()
	e.deadline = deadline
	e.mu.Unlock()
	return nil
}

func (e *Engine) DisarmTimer() error {
	e.mu.Lock()
	e.deadline = time.Time{}
	e.mu.Unlock()
	return nil
}

// Poll returns injected readiness, or waits for Inject, Wake, the armed
// deadline or timeout, whichever comes first.
func (e *Engine) Poll(timeout time.Duration, out []api.Readiness) (int, error) {
	e.mu.Lock()
	e.polls++
	if e.pollErr != nil {
		err := e.pollErr
		e.mu.Unlock()
		return 0, err
	}
	if n := e.takeLocked(out); n > 0 {
		e.mu.Unlock()
		return n, nil
	}
	wait := timeout
	if !e.deadline.IsZero() {
		d := time.Until(e.deadline)
		if d < 0 {
			d = 0
		}
		if wait < 0 || d < wait {
			wait = d
		}
	}
	e.mu.Unlock()

	if wait != 0 {
		var timerC <-chan time.Time
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			timerC = t.C
		}
		select {
		case <-e.wake:
		case <-timerC:
		}
	} else {
		select {
		case <-e.wake:
		default:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.takeLocked(out), nil
}

func (e *Engine) takeLocked(out []api.Readiness) int {
	n := 0
	rest := e.pending[:0]
	for _, r := range e.pending {
		if _, ok := e.watched[r.Fd]; !ok {
			continue
		}
		if n < len(out) {
			out[n] = r
			n++
			continue
		}
		rest = append(rest, r)
	}
	e.pending = rest
	return n
}

func (e *Engine) Wake() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrClosed
	}
	e.wakes++
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// Inject queues readiness for fd and wakes a blocked Poll. Safe from any goroutine.
func (e *Engine) Inject(fd int, events api.IOEvents) {
	e.mu.Lock()
	e.pending = append(e.pending, api.Readiness{Fd: fd, Events: events})
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Watched returns the mask registered for fd.
func (e *Engine) Watched(fd int) (api.IOEvents, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.watched[fd]
	return ev, ok
}

// Deadline returns the armed timer deadline, zero when disarmed.
func (e *Engine) Deadline() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deadline
}

// Stats returns how often Poll and Wake were called.
func (e *Engine) Stats() (polls, wakes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.polls, e.wakes
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// SetWatchError makes subsequent Watch calls fail.
func (e *Engine) SetWatchError(err error) {
	e.mu.Lock()
	e.watchErr = err
	e.mu.Unlock()
}

// SetPollError makes subsequent Poll calls fail.
func (e *Engine) SetPollError(err error) {
	e.mu.Lock()
	e.pollErr = err
	e.mu.Unlock()
}
