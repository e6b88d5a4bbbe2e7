package concurrency

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/control"
	"github.com/momentics/hioload-ev/event"
)

// chanRunner hands posted completions to the test instead of a loop.
type chanRunner struct {
	ch chan func()
}

func newChanRunner() *chanRunner { return &chanRunner{ch: make(chan func(), 64)} }

func (r *chanRunner) RunInLoop(fn func()) api.RunID { r.ch <- fn; return api.RunID{ID: 1} }
func (r *chanRunner) RunNext(fn func()) api.RunID   { return r.RunInLoop(fn) }
func (r *chanRunner) Run(fn func()) api.RunID       { return r.RunInLoop(fn) }
func (r *chanRunner) Cancel(api.RunID) bool         { return false }
func (r *chanRunner) IsInLoopThread() bool          { return false }

func (r *chanRunner) next(t *testing.T) func() {
	t.Helper()
	select {
	case fn := <-r.ch:
		return fn
	case <-time.After(5 * time.Second):
		t.Fatal("no completion posted")
		return nil
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newPool(t *testing.T, r api.Runner, minW, maxW int, opts ...Option) *ThreadPool {
	t.Helper()
	p := NewThreadPool(r, append([]Option{WithLogger(quiet())}, opts...)...)
	require.NoError(t, p.Initialize(minW, maxW))
	t.Cleanup(p.Cleanup)
	return p
}

// gate blocks the single worker of a pool until opened.
func gate(t *testing.T, p *ThreadPool) (api.TaskToken, func()) {
	t.Helper()
	started := make(chan struct{})
	release := make(chan struct{})
	tok, err := p.Execute(func() {
		close(started)
		<-release
	})
	require.NoError(t, err)
	<-started
	var once sync.Once
	return tok, func() { once.Do(func() { close(release) }) }
}

func TestInitializeErrors(t *testing.T) {
	p := NewThreadPool(newChanRunner(), WithLogger(quiet()))
	_, err := p.Execute(func() {})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, StatusNotFound, p.TaskStatus(api.TaskToken{ID: 1}))

	assert.ErrorIs(t, p.Initialize(3, 2), ErrInvalidWorkerCount)
	assert.ErrorIs(t, p.Initialize(-1, 0), api.ErrInvalidArgument)
	require.NoError(t, p.Initialize(1, 2))
	assert.ErrorIs(t, p.Initialize(1, 2), ErrAlreadyInitialized)
	_, err = p.Execute(nil)
	assert.ErrorIs(t, err, ErrNilTask)
	p.Cleanup()
}

func TestExecuteThenPostsCompletion(t *testing.T) {
	r := newChanRunner()
	p := newPool(t, r, 1, 1)
	backendDone := make(chan struct{})
	completed := false
	tok, err := p.ExecuteThen(func() { close(backendDone) }, func() { completed = true })
	require.NoError(t, err)
	<-backendDone

	fn := r.next(t)
	assert.False(t, completed, "completion runs only where the runner runs it")
	assert.Equal(t, StatusNotFound, p.TaskStatus(tok), "freed before the completion is posted")
	fn()
	assert.True(t, completed)
}

func TestStatusAndCancel(t *testing.T) {
	p := newPool(t, newChanRunner(), 1, 1)
	running, release := gate(t, p)
	defer release()

	ran := false
	waiting, err := p.Execute(func() { ran = true })
	require.NoError(t, err)

	assert.Equal(t, StatusExecuting, p.TaskStatus(running))
	assert.Equal(t, StatusWaiting, p.TaskStatus(waiting))
	assert.Equal(t, CancelExecuting, p.Cancel(running))
	assert.Equal(t, CancelSuccess, p.Cancel(waiting))
	assert.Equal(t, CancelNotFound, p.Cancel(waiting))
	assert.Equal(t, StatusNotFound, p.TaskStatus(waiting))

	release()
	assert.Eventually(t, func() bool { return p.TaskStatus(running) == StatusNotFound },
		5*time.Second, time.Millisecond)
	s := p.Stats()
	assert.Equal(t, uint64(2), s.Submitted)
	assert.Equal(t, uint64(1), s.Cancelled)
	assert.Eventually(t, func() bool { return p.Stats().Completed == 1 }, 5*time.Second, time.Millisecond)
	assert.False(t, ran)
}

func TestPriorityOrder(t *testing.T) {
	p := newPool(t, newChanRunner(), 1, 1)
	_, release := gate(t, p)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	prios := []int{2, 0, -2, 1, -1, -5, 9}
	for _, prio := range prios {
		_, err := p.ExecuteWithPriority(func() {
			mu.Lock()
			order = append(order, prio)
			mu.Unlock()
		}, nil, prio)
		require.NoError(t, err)
	}
	_, err := p.ExecuteWithPriority(func() { close(done) }, nil, PriorityLowest)
	require.NoError(t, err)
	release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{-2, -5, -1, 0, 1, 2, 9}, order)
}

func TestCleanup(t *testing.T) {
	p := NewThreadPool(newChanRunner(), WithLogger(quiet()))
	require.NoError(t, p.Initialize(1, 1))
	running, release := gate(t, p)

	dropped := false
	waiting, err := p.Execute(func() { dropped = true })
	require.NoError(t, err)

	cleaned := make(chan struct{})
	go func() {
		p.Cleanup()
		close(cleaned)
	}()
	assert.Eventually(t, func() bool { return p.TaskStatus(waiting) == StatusCleanup },
		5*time.Second, time.Millisecond)
	release()
	<-cleaned

	assert.False(t, dropped)
	assert.Equal(t, 0, p.NumWorkers())
	assert.Equal(t, StatusCleanup, p.TaskStatus(running))
	assert.Equal(t, CancelCleanup, p.Cancel(waiting))
	_, err = p.Execute(func() {})
	assert.ErrorIs(t, err, ErrExecutorClosed)
	p.Cleanup()

	require.NoError(t, p.Initialize(0, 1))
	done := make(chan struct{})
	_, err = p.Execute(func() { close(done) })
	require.NoError(t, err)
	<-done
	p.Cleanup()
}

func TestPanicSkipsCompletion(t *testing.T) {
	r := newChanRunner()
	p := newPool(t, r, 1, 1)
	_, err := p.ExecuteThen(func() { panic("boom") }, func() { t.Error("completion after panic") })
	require.NoError(t, err)

	_, err = p.ExecuteThen(func() {}, func() {})
	require.NoError(t, err)
	r.next(t)()
	s := p.Stats()
	assert.Equal(t, uint64(1), s.Panicked)
	assert.Equal(t, uint64(2), s.Completed)
}

func TestElasticWorkers(t *testing.T) {
	p := newPool(t, newChanRunner(), 0, 3)
	assert.Equal(t, 0, p.NumWorkers())

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(3)
	for i := 0; i < 3; i++ {
		_, err := p.Execute(func() {
			started.Done()
			<-release
		})
		require.NoError(t, err)
	}
	started.Wait()
	assert.Equal(t, 3, p.NumWorkers())

	_, err := p.Execute(func() {})
	require.NoError(t, err)
	assert.Equal(t, 3, p.NumWorkers(), "capped at max")
	assert.Equal(t, 1, p.Stats().Waiting)

	close(release)
	assert.Eventually(t, func() bool { return p.NumWorkers() <= 1 }, 5*time.Second, time.Millisecond)
}

func TestStatsMetrics(t *testing.T) {
	reg := control.NewMetricsRegistry()
	p := NewThreadPool(newChanRunner(), WithLogger(quiet()), WithMetrics(reg), WithWorkerAffinity([]int{0}))
	require.NoError(t, p.Initialize(1, 1))
	done := make(chan struct{})
	_, err := p.Execute(func() { close(done) })
	require.NoError(t, err)
	<-done
	assert.Eventually(t, func() bool { return p.Stats().Completed == 1 }, 5*time.Second, time.Millisecond)

	v, ok := reg.Get(p.metricPrefix() + ".completed")
	require.True(t, ok)
	assert.Equal(t, uint64(1), v)
	p.Cleanup()
	assert.Empty(t, reg.Keys())
}

func TestCompletionOnLoopThread(t *testing.T) {
	l, err := event.New(event.WithLogger(quiet()))
	require.NoError(t, err)
	defer l.Close()
	p := newPool(t, l, 1, 2)

	var onLoop, backendOnLoop bool
	l.RunInLoop(func() {
		_, err := p.ExecuteThen(
			func() { backendOnLoop = l.IsInLoopThread() },
			func() {
				onLoop = l.IsInLoopThread()
				l.ExitLoop(0)
			})
		require.NoError(t, err)
	})
	l.ExitLoop(5 * time.Second)
	require.NoError(t, l.RunLoop(event.ModeForever))
	assert.True(t, onLoop)
	assert.False(t, backendOnLoop)
}
