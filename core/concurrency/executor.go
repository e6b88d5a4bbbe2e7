// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool runs backend functions on worker goroutines and hands their
// completions back to an event loop through RunInLoop. Tasks live in a
// Cabinet under the pool mutex; the priority queues only carry tokens, so a
// cancelled task is skipped when its token surfaces.

package concurrency

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/momentics/hioload-ev/affinity"
	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/cabinet"
	"github.com/momentics/hioload-ev/control"
	"github.com/momentics/hioload-ev/internal/logging"
)

// Priority bounds; -2 is served first.
const (
	PriorityHighest = -2
	PriorityNormal  = 0
	PriorityLowest  = 2

	numPriorities = PriorityLowest - PriorityHighest + 1
)

// TaskStatus is the state of a submitted task.
type TaskStatus int

const (
	StatusWaiting TaskStatus = iota
	StatusExecuting
	StatusNotFound // finished, cancelled or never submitted
	StatusCleanup  // the pool was cleaned up
)

func (s TaskStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusExecuting:
		return "executing"
	case StatusNotFound:
		return "not-found"
	case StatusCleanup:
		return "cleanup"
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

// CancelResult is the outcome of Cancel.
type CancelResult int

const (
	CancelSuccess CancelResult = iota
	CancelExecuting
	CancelNotFound
	CancelCleanup
)

func (c CancelResult) String() string {
	switch c {
	case CancelSuccess:
		return "success"
	case CancelExecuting:
		return "executing"
	case CancelNotFound:
		return "not-found"
	case CancelCleanup:
		return "cleanup"
	}
	return fmt.Sprintf("CancelResult(%d)", int(c))
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Cancelled uint64
	Panicked  uint64
	Workers   int
	Idle      int
	Waiting   int
}

type task struct {
	backend    func()
	completion func()
	executing  bool
	queued     time.Time
}

// ThreadPool is an api.Executor with priorities and elastic workers.
type ThreadPool struct {
	id      uuid.UUID
	loop    api.Runner
	log     *logging.Logger
	metrics *control.MetricsRegistry
	cpus    []int
	logger  *slog.Logger

	mu          sync.Mutex
	cond        *sync.Cond
	tasks       cabinet.Cabinet[task]
	queues      [numPriorities]*queue.Queue
	wg          *conc.WaitGroup
	minWorkers  int
	maxWorkers  int // 0 is unbounded
	workers     int
	idle        int
	waiting     int
	nextWorker  int
	initialized bool
	stopping    bool
	cleaned     bool

	submitted, completed, cancelled, panicked uint64
}

var _ api.Executor = (*ThreadPool)(nil)

// Option configures a ThreadPool.
type Option func(*ThreadPool)

func WithLogger(l *slog.Logger) Option {
	return func(p *ThreadPool) { p.logger = l }
}

// WithMetrics publishes Stats under "pool.<id>." whenever Stats is called.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(p *ThreadPool) { p.metrics = m }
}

// WithWorkerAffinity pins worker n to cpus[n%len(cpus)].
func WithWorkerAffinity(cpus []int) Option {
	return func(p *ThreadPool) { p.cpus = append([]int(nil), cpus...) }
}

// NewThreadPool creates a pool posting completions to loop. Call Initialize
// before submitting work.
func NewThreadPool(loop api.Runner, opts ...Option) *ThreadPool {
	p := &ThreadPool{id: uuid.New(), loop: loop}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logging.FromSlog(p.logger).Component("concurrency.pool").With("pool", p.id.String())
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Initialize starts minWorkers workers and allows growth up to maxWorkers
// (0 is unbounded).
func (p *ThreadPool) Initialize(minWorkers, maxWorkers int) error {
	if minWorkers < 0 || maxWorkers < 0 || (maxWorkers != 0 && minWorkers > maxWorkers) {
		return fmt.Errorf("min %d max %d: %w", minWorkers, maxWorkers, ErrInvalidWorkerCount)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return ErrAlreadyInitialized
	}
	for i := range p.queues {
		p.queues[i] = queue.New()
	}
	p.minWorkers, p.maxWorkers = minWorkers, maxWorkers
	p.wg = conc.NewWaitGroup()
	p.initialized, p.cleaned, p.stopping = true, false, false
	for i := 0; i < minWorkers; i++ {
		p.spawnLocked()
	}
	p.log.Debug("thread pool initialized", "min", minWorkers, "max", maxWorkers)
	return nil
}

// Execute runs backend on a worker at normal priority.
func (p *ThreadPool) Execute(backend func()) (api.TaskToken, error) {
	return p.ExecuteWithPriority(backend, nil, PriorityNormal)
}

// ExecuteThen runs backend on a worker, then completion on the loop thread.
func (p *ThreadPool) ExecuteThen(backend, completion func()) (api.TaskToken, error) {
	return p.ExecuteWithPriority(backend, completion, PriorityNormal)
}

// ExecuteWithPriority is ExecuteThen with a priority in [-2, 2]; values
// outside are clamped. completion may be nil.
func (p *ThreadPool) ExecuteWithPriority(backend, completion func(), prio int) (api.TaskToken, error) {
	if backend == nil {
		return api.TaskToken{}, ErrNilTask
	}
	prio = min(max(prio, PriorityHighest), PriorityLowest)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.cleaned || p.stopping:
		return api.TaskToken{}, ErrExecutorClosed
	case !p.initialized:
		return api.TaskToken{}, ErrNotInitialized
	}
	tok := p.tasks.Alloc(&task{backend: backend, completion: completion, queued: time.Now()})
	p.queues[prio-PriorityHighest].Add(tok)
	p.waiting++
	p.submitted++
	if p.waiting > p.idle && (p.maxWorkers == 0 || p.workers < p.maxWorkers) {
		p.spawnLocked()
	}
	p.cond.Signal()
	return tok, nil
}

// TaskStatus reports where a task is.
func (p *ThreadPool) TaskStatus(tok api.TaskToken) TaskStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleaned || p.stopping {
		return StatusCleanup
	}
	t := p.tasks.At(tok)
	switch {
	case t == nil:
		return StatusNotFound
	case t.executing:
		return StatusExecuting
	}
	return StatusWaiting
}

// Cancel prevents a waiting task from running. Running tasks are not
// interrupted.
func (p *ThreadPool) Cancel(tok api.TaskToken) CancelResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cleaned || p.stopping {
		return CancelCleanup
	}
	t := p.tasks.At(tok)
	switch {
	case t == nil:
		return CancelNotFound
	case t.executing:
		return CancelExecuting
	}
	p.tasks.Free(tok)
	p.waiting--
	p.cancelled++
	return CancelSuccess
}

// NumWorkers returns the current worker count.
func (p *ThreadPool) NumWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Cleanup drops waiting tasks, stops the workers and waits for running tasks
// to finish. Must not be called from a backend function.
func (p *ThreadPool) Cleanup() {
	p.mu.Lock()
	if !p.initialized || p.stopping {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	dropped := 0
	for _, q := range p.queues {
		for q.Length() > 0 {
			if p.tasks.Free(q.Remove().(cabinet.Token)) != nil {
				dropped++
			}
		}
	}
	p.waiting = 0
	p.cond.Broadcast()
	wg := p.wg
	p.mu.Unlock()

	wg.Wait()

	p.mu.Lock()
	p.tasks.Clear()
	p.initialized, p.stopping, p.cleaned = false, false, true
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.DeletePrefix(p.metricPrefix() + ".")
	}
	p.log.Debug("thread pool cleaned up", "dropped", dropped)
}

// Stats returns the counters and publishes them to the metrics registry.
func (p *ThreadPool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Submitted: p.submitted,
		Completed: p.completed,
		Cancelled: p.cancelled,
		Panicked:  p.panicked,
		Workers:   p.workers,
		Idle:      p.idle,
		Waiting:   p.waiting,
	}
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetMany(p.metricPrefix(), map[string]any{
			"submitted": s.Submitted,
			"completed": s.Completed,
			"cancelled": s.Cancelled,
			"panicked":  s.Panicked,
			"workers":   s.Workers,
			"idle":      s.Idle,
			"waiting":   s.Waiting,
		})
	}
	return s
}

func (p *ThreadPool) metricPrefix() string { return "pool." + p.id.String() }

func (p *ThreadPool) spawnLocked() {
	id := p.nextWorker
	p.nextWorker++
	p.workers++
	cpu := -1
	if len(p.cpus) > 0 {
		cpu = p.cpus[id%len(p.cpus)]
	}
	p.wg.Go(func() { p.work(id, cpu) })
}

// popLocked returns the next live task, highest priority first.
func (p *ThreadPool) popLocked() (cabinet.Token, *task) {
	for _, q := range p.queues {
		for q.Length() > 0 {
			tok := q.Remove().(cabinet.Token)
			if t := p.tasks.At(tok); t != nil {
				p.waiting--
				return tok, t
			}
		}
	}
	return cabinet.Token{}, nil
}

func (p *ThreadPool) work(id, cpu int) {
	if cpu >= 0 {
		// the pinned thread is discarded when this goroutine exits
		runtime.LockOSThread()
		if err := affinity.SetAffinity(cpu); err != nil {
			p.log.Warn("worker affinity not applied", "worker", id, "cpu", cpu, "error", err)
		}
	}

	p.mu.Lock()
	for {
		tok, t := p.popLocked()
		if t == nil {
			if p.stopping {
				break
			}
			if p.workers > p.minWorkers && p.idle > 0 {
				break
			}
			p.idle++
			p.cond.Wait()
			p.idle--
			continue
		}
		t.executing = true
		p.mu.Unlock()

		ok := p.runBackend(id, t.backend)

		p.mu.Lock()
		p.tasks.Free(tok)
		p.completed++
		if !ok {
			p.panicked++
			continue
		}
		if t.completion != nil {
			p.mu.Unlock()
			p.loop.RunInLoop(t.completion)
			p.mu.Lock()
		}
	}
	p.workers--
	p.mu.Unlock()
}

// runBackend reports false when backend panicked; the panic is logged and
// the completion is not posted.
func (p *ThreadPool) runBackend(worker int, backend func()) bool {
	var pc panics.Catcher
	pc.Try(backend)
	if r := pc.Recovered(); r != nil {
		p.log.Error("backend task panicked", "worker", worker, "panic", r.Value, "stack", string(r.Stack))
		return false
	}
	return true
}
