// File: event/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-threaded reactor. Owns the engine, the cross-thread inbound queue, the
// loop-thread ready and run-next queues, the timer heap and the fd table.

package event

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/momentics/hioload-ev/affinity"
	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/cabinet"
	"github.com/momentics/hioload-ev/internal/logging"
	"github.com/momentics/hioload-ev/reactor"
)

// RunMode selects when RunLoop returns.
type RunMode int

const (
	// ModeForever runs until ExitLoop.
	ModeForever RunMode = iota
	// ModeUntilNoWork returns once no work is queued, no timer is armed and no
	// user fd or signal event is enabled.
	ModeUntilNoWork
	// ModeOnce runs a single cycle.
	ModeOnce
)

func (m RunMode) String() string {
	switch m {
	case ModeForever:
		return "forever"
	case ModeUntilNoWork:
		return "until-no-work"
	case ModeOnce:
		return "once"
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// ErrRunning is returned by RunLoop when the loop already runs.
var ErrRunning = errors.New("event: loop already running")

// closeRounds bounds how often Close drains deferred work that keeps
// scheduling more work.
const closeRounds = 10

type runItem struct {
	fn     func()
	queued time.Time
	next   bool
}

type fdEntry struct {
	fd     int
	mask   api.IOEvents
	events []*FdEvent
}

// Loop is the reactor. Create it with New.
type Loop struct {
	id     uuid.UUID
	cfg    config
	log    *logging.Logger
	engine api.Engine

	tid     atomic.Int64 // loop thread while RunLoop runs, 0 otherwise
	running atomic.Bool
	closed  bool

	mu          sync.Mutex
	inbound     *queue.Queue // cabinet.Token, cross-thread
	wakePending bool
	wakeAt      time.Time
	exitSet     bool
	exitAt      time.Time

	runs  *cabinet.SyncCabinet[runItem]
	ready *queue.Queue // cabinet.Token, loop thread only
	next  *queue.Queue

	timers      timerHeap
	timerSeq    uint64
	armed       time.Time
	armedValid  bool
	fds         map[int]*fdEntry
	userWatches int
	readiness   []api.Readiness
	signals     *signalState

	cycleEvents uint64

	statMu      sync.Mutex
	stat        Stat
	waterLine   WaterLine
	lastPublish time.Time
}

// Engines lists the compiled-in engine names.
func Engines() []string { return reactor.Engines() }

// New creates a loop. Engine construction failure is returned as is and is
// not retried.
func New(opts ...Option) (*Loop, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	engine := cfg.engine
	if engine == nil {
		var err error
		if engine, err = reactor.New(cfg.engineName); err != nil {
			return nil, err
		}
	}
	l := &Loop{
		id:        uuid.New(),
		cfg:       cfg,
		engine:    engine,
		inbound:   queue.New(),
		runs:      &cabinet.SyncCabinet[runItem]{},
		ready:     queue.New(),
		next:      queue.New(),
		fds:       make(map[int]*fdEntry),
		readiness: make([]api.Readiness, cfg.readiness),
		waterLine: cfg.waterLine,
	}
	l.log = logging.FromSlog(cfg.logger).Component("event.loop").With("loop", l.id.String(), "engine", engine.Name())
	l.stat.StatTime = time.Now()
	if cfg.probes != nil {
		cfg.probes.RegisterProbe(l.metricPrefix(), func() any { return l.Stat() })
	}
	l.log.Debug("loop created")
	return l, nil
}

// ID is the loop identity used in logs, metrics and probes.
func (l *Loop) ID() uuid.UUID { return l.id }

// EngineName reports the backend in use.
func (l *Loop) EngineName() string { return l.engine.Name() }

// IsInLoopThread reports whether the caller runs on the loop thread.
func (l *Loop) IsInLoopThread() bool {
	tid := l.tid.Load()
	return tid != 0 && tid == threadID()
}

// IsRunning reports whether RunLoop is active.
func (l *Loop) IsRunning() bool { return l.running.Load() }

// RunInLoop queues fn. From the loop thread it runs later in the current
// cycle; from any other goroutine it is handed over under the lock and the
// engine is woken.
func (l *Loop) RunInLoop(fn func()) api.RunID {
	tok := l.runs.Alloc(&runItem{fn: fn, queued: time.Now()})
	if l.IsInLoopThread() {
		l.ready.Add(tok)
		return tok
	}

	l.mu.Lock()
	l.inbound.Add(tok)
	wake := !l.wakePending
	if wake {
		l.wakePending = true
		l.wakeAt = time.Now()
	}
	l.mu.Unlock()

	if wake {
		if err := l.engine.Wake(); err != nil && !errors.Is(err, api.ErrClosed) {
			l.log.Error("engine wake failed", "error", err)
		}
	}
	return tok
}

// RunNext queues fn for the next cycle, after all work of the current one.
// Loop thread only, or before the loop runs.
func (l *Loop) RunNext(fn func()) api.RunID {
	l.assertInLoop("RunNext")
	tok := l.runs.Alloc(&runItem{fn: fn, queued: time.Now(), next: true})
	l.next.Add(tok)
	return tok
}

// Run uses RunNext on the loop thread or while the loop is not running, and
// RunInLoop otherwise.
func (l *Loop) Run(fn func()) api.RunID {
	if l.IsInLoopThread() || !l.IsRunning() {
		return l.RunNext(fn)
	}
	return l.RunInLoop(fn)
}

// Cancel drops a queued function. It reports false when id already ran, was
// cancelled, or never existed.
func (l *Loop) Cancel(id api.RunID) bool {
	return l.runs.Free(id) != nil
}

// ExitLoop makes RunLoop return once delay has elapsed, at the end of that
// cycle. The latest call replaces any earlier request.
func (l *Loop) ExitLoop(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	l.exitSet = true
	l.exitAt = time.Now().Add(delay)
	l.mu.Unlock()

	if !l.IsInLoopThread() {
		if err := l.engine.Wake(); err != nil && !errors.Is(err, api.ErrClosed) {
			l.log.Error("engine wake failed", "error", err)
		}
	}
}

// RunLoop drives the loop on the calling goroutine, which is locked to its
// OS thread until RunLoop returns.
func (l *Loop) RunLoop(mode RunMode) error {
	if l.closed {
		return api.ErrClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	runtime.LockOSThread()
	pinned := false
	if l.cfg.cpu >= 0 {
		if err := affinity.SetAffinity(l.cfg.cpu); err != nil {
			l.log.Warn("cpu affinity not applied", "cpu", l.cfg.cpu, "error", err)
		} else {
			pinned = true
		}
	}
	defer func() {
		// a pinned thread stays with this goroutine and dies with it
		if !pinned {
			runtime.UnlockOSThread()
		}
	}()
	l.tid.Store(threadID())
	defer func() {
		l.tid.Store(0)
		l.mu.Lock()
		l.exitSet = false
		l.mu.Unlock()
		l.running.Store(false)
	}()

	l.log.Debug("loop started", "mode", mode.String())
	for {
		stop, err := l.cycle(mode)
		if err != nil {
			l.log.Error("loop stopped on engine error", "error", err)
			return err
		}
		if stop {
			break
		}
	}
	l.log.Debug("loop stopped")
	return nil
}

func (l *Loop) cycle(mode RunMode) (bool, error) {
	wl := l.WaterLine()
	l.cycleEvents = 0

	l.mu.Lock()
	for l.inbound.Length() > 0 {
		l.ready.Add(l.inbound.Remove())
	}
	woken, wakeAt := l.wakePending, l.wakeAt
	l.wakePending = false
	l.mu.Unlock()

	start := time.Now()
	if woken {
		if d := start.Sub(wakeAt); d > wl.WakeDelay {
			l.log.Info("wake delay over water line", "delay", d, "limit", wl.WakeDelay)
		}
	}

	readyPeak, nextPeak := l.ready.Length(), l.next.Length()
	for l.next.Length() > 0 {
		l.ready.Add(l.next.Remove())
	}
	l.drainReady(wl)
	l.handleExpiredTimers(wl.TimerDelay)

	pending := l.ready.Length() > 0 || l.next.Length() > 0
	l.mu.Lock()
	pending = pending || l.inbound.Length() > 0
	exitSet, exitAt := l.exitSet, l.exitAt
	l.mu.Unlock()

	if mode == ModeUntilNoWork && !pending && len(l.timers) == 0 && l.userWatches == 0 {
		l.endCycle(time.Since(start), readyPeak, nextPeak, l.cycleEvents)
		return true, nil
	}

	deadline := l.nextDeadline()
	if exitSet && (deadline.IsZero() || exitAt.Before(deadline)) {
		deadline = exitAt
	}
	if err := l.armEngineTimer(deadline); err != nil {
		return false, err
	}

	timeout := time.Duration(-1)
	if pending || mode == ModeOnce || (exitSet && !time.Now().Before(exitAt)) {
		timeout = 0
	}
	busy := time.Since(start)

	n, err := l.engine.Poll(timeout, l.readiness)
	if err != nil {
		return false, fmt.Errorf("event: poll: %w", err)
	}
	polled := time.Now()
	if l.armedValid && !l.armed.IsZero() && !polled.Before(l.armed) {
		// the engine timer has fired or is about to; force a re-arm
		l.armedValid = false
	}
	for i := 0; i < n; i++ {
		l.dispatchFd(l.readiness[i], wl)
	}
	if n == len(l.readiness) {
		l.readiness = make([]api.Readiness, len(l.readiness)*3/2)
	}
	busy += time.Since(polled)
	l.endCycle(busy, readyPeak, nextPeak, l.cycleEvents)

	if mode == ModeOnce {
		return true, nil
	}
	l.mu.Lock()
	exitSet, exitAt = l.exitSet, l.exitAt
	l.mu.Unlock()
	return exitSet && !time.Now().Before(exitAt), nil
}

// drainReady runs the ready queue in FIFO order. Items appended by RunInLoop
// from inside a callback join the same drain.
func (l *Loop) drainReady(wl WaterLine) {
	for l.ready.Length() > 0 {
		tok := l.ready.Remove().(cabinet.Token)
		item := l.runs.Free(tok)
		if item == nil {
			continue // cancelled
		}
		start := time.Now()
		limit := wl.RunInLoopDelay
		if item.next {
			limit = wl.RunNextDelay
		}
		if d := start.Sub(item.queued); d > limit {
			l.log.Info("run delay over water line", "delay", d, "limit", limit, "next", item.next)
		}
		item.fn()
		if cost := time.Since(start); cost > wl.RunCbCost {
			l.log.Info("run callback cost over water line", "cost", cost, "limit", wl.RunCbCost)
		}
	}
}

func (l *Loop) armEngineTimer(deadline time.Time) error {
	if l.armedValid && deadline.Equal(l.armed) {
		return nil
	}
	var err error
	if deadline.IsZero() {
		err = l.engine.DisarmTimer()
	} else {
		err = l.engine.ArmTimer(deadline)
	}
	if err != nil {
		l.armedValid = false
		return fmt.Errorf("event: arm engine timer: %w", err)
	}
	l.armed, l.armedValid = deadline, true
	return nil
}

// invokeEvent runs an event callback with bookkeeping for deferred close.
func (l *Loop) invokeEvent(b *eventBase, fn func(), wl WaterLine) {
	b.inCallback++
	start := time.Now()
	fn()
	if cost := time.Since(start); cost > wl.EventCbCost {
		l.log.Info("event callback cost over water line", "kind", b.kind, "cost", cost, "limit", wl.EventCbCost)
	}
	b.inCallback--
	l.cycleEvents++
}

// assertInLoop flags loop state touched from a foreign thread while the loop
// runs.
func (l *Loop) assertInLoop(op string) {
	if !l.running.Load() || l.IsInLoopThread() {
		return
	}
	if l.cfg.strict {
		panic(fmt.Sprintf("event: %s called outside the loop thread", op))
	}
	l.log.Error("called outside the loop thread, marshal it with RunInLoop", "op", op)
}

// Close releases the loop. It must not be called while RunLoop runs. Deferred
// work still queued is run first, for a bounded number of rounds.
func (l *Loop) Close() error {
	if l.running.Load() {
		return ErrRunning
	}
	if l.closed {
		return nil
	}
	for round := 0; round < closeRounds; round++ {
		l.mu.Lock()
		for l.inbound.Length() > 0 {
			l.ready.Add(l.inbound.Remove())
		}
		l.mu.Unlock()
		for l.next.Length() > 0 {
			l.ready.Add(l.next.Remove())
		}
		if l.ready.Length() == 0 {
			break
		}
		l.drainReady(l.WaterLine())
	}
	if n := l.ready.Length() + l.next.Length(); n > 0 {
		l.log.Warn("deferred work dropped on close", "count", n)
	}
	l.closed = true

	l.closeSignals()
	for _, t := range l.timers {
		t.index = -1
	}
	l.timers = nil
	if l.cfg.probes != nil {
		l.cfg.probes.UnregisterProbe(l.metricPrefix())
	}
	if l.cfg.metrics != nil {
		l.cfg.metrics.DeletePrefix(l.metricPrefix() + ".")
	}
	l.runs.Clear()
	l.log.Debug("loop closed")
	return l.engine.Close()
}
