package event

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/api"
)

func TestTimerOneshot(t *testing.T) {
	for _, name := range Engines() {
		t.Run(name, func(t *testing.T) {
			l := newLoop(t, WithEngine(name))
			ev := l.NewTimerEvent()
			require.NoError(t, ev.Initialize(20*time.Millisecond, ModeOneshot))
			fired := 0
			ev.SetCallback(func() {
				fired++
				assert.False(t, ev.IsEnabled())
			})
			start := time.Now()
			require.NoError(t, ev.Enable())
			require.NoError(t, l.RunLoop(ModeUntilNoWork))
			assert.Equal(t, 1, fired)
			assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
			assert.False(t, ev.IsEnabled())
		})
	}
}

func TestTimerPersistDriftFree(t *testing.T) {
	l := newLoop(t)
	const interval = 15 * time.Millisecond
	ev := l.NewTimerEvent()
	require.NoError(t, ev.Initialize(interval, ModePersist))
	require.NoError(t, ev.Enable())
	first := ev.t.deadline
	enabled := first.Add(-interval)

	var fires []time.Time
	ev.SetCallback(func() {
		now := time.Now()
		fires = append(fires, now)
		n := len(fires)
		// re-armed from the previous deadline, not from now
		assert.True(t, ev.t.deadline.Equal(first.Add(time.Duration(n)*interval)))
		assert.False(t, now.Before(enabled.Add(time.Duration(n)*interval)))
		time.Sleep(3 * time.Millisecond)
		if n == 5 {
			require.NoError(t, ev.Disable())
		}
	})
	require.NoError(t, l.RunLoop(ModeUntilNoWork))
	assert.Len(t, fires, 5)
	assert.Nil(t, ev.t)
}

func TestTimerOrderByDeadline(t *testing.T) {
	l := newLoop(t)
	var order []string
	add := func(name string, d time.Duration) {
		ev := l.NewTimerEvent()
		require.NoError(t, ev.Initialize(d, ModeOneshot))
		ev.SetCallback(func() { order = append(order, name) })
		require.NoError(t, ev.Enable())
	}
	add("c", 30*time.Millisecond)
	add("a", 10*time.Millisecond)
	add("b", 20*time.Millisecond)
	require.NoError(t, l.RunLoop(ModeUntilNoWork))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTimerSameDeadlineKeepsArmingOrder(t *testing.T) {
	l := newLoop(t)
	var order []int
	deadline := time.Now().Add(5 * time.Millisecond)
	for i := 0; i < 4; i++ {
		tm := l.addTimer(time.Duration(4-i)*time.Millisecond, 1, func() { order = append(order, i) })
		tm.deadline = deadline
	}
	heap.Init(&l.timers)
	require.NoError(t, l.RunLoop(ModeUntilNoWork))
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestTimerOneshotReenable(t *testing.T) {
	l := newLoop(t)
	ev := l.NewTimerEvent()
	require.NoError(t, ev.Initialize(time.Millisecond, ModeOneshot))
	fired := 0
	ev.SetCallback(func() {
		fired++
		if fired < 3 {
			require.NoError(t, ev.Enable())
		}
	})
	require.NoError(t, ev.Enable())
	require.NoError(t, l.RunLoop(ModeUntilNoWork))
	assert.Equal(t, 3, fired)
}

func TestTimerCloseInsideCallback(t *testing.T) {
	l := newLoop(t)
	ev := l.NewTimerEvent()
	require.NoError(t, ev.Initialize(time.Millisecond, ModePersist))
	fired := 0
	var cbAfterClose, cbNextCycle bool
	ev.SetCallback(func() {
		fired++
		require.NoError(t, ev.Close())
		assert.False(t, ev.IsEnabled())
		cbAfterClose = ev.cb != nil
		l.RunNext(func() { cbNextCycle = ev.cb != nil })
	})
	require.NoError(t, ev.Enable())
	require.NoError(t, l.RunLoop(ModeUntilNoWork))

	assert.Equal(t, 1, fired)
	assert.True(t, cbAfterClose, "release deferred while the callback runs")
	assert.False(t, cbNextCycle, "released on the next cycle")
	assert.ErrorIs(t, ev.Enable(), api.ErrClosed)
	assert.ErrorIs(t, ev.Initialize(time.Second, ModePersist), api.ErrClosed)
	assert.NoError(t, ev.Close())
}

func TestTimerInitializeErrors(t *testing.T) {
	l := newLoop(t)
	ev := l.NewTimerEvent()
	assert.ErrorIs(t, ev.Enable(), api.ErrNotInitialized)
	assert.ErrorIs(t, ev.Initialize(0, ModePersist), api.ErrInvalidArgument)
	assert.ErrorIs(t, ev.Initialize(-time.Second, ModePersist), api.ErrInvalidArgument)
	assert.NoError(t, ev.Disable())
	assert.Same(t, l, ev.Loop())
}

func TestTimerReinitializeWhileEnabled(t *testing.T) {
	l := newLoop(t)
	ev := l.NewTimerEvent()
	require.NoError(t, ev.Initialize(time.Hour, ModePersist))
	require.NoError(t, ev.Enable())
	require.NoError(t, ev.Enable())
	assert.Len(t, l.timers, 1)

	require.NoError(t, ev.Initialize(time.Millisecond, ModeOneshot))
	assert.False(t, ev.IsEnabled())
	assert.Empty(t, l.timers)
	assert.Equal(t, time.Millisecond, ev.Interval())
	assert.Equal(t, ModeOneshot, ev.Mode())

	fired := false
	ev.SetCallback(func() { fired = true })
	require.NoError(t, ev.Enable())
	require.NoError(t, l.RunLoop(ModeUntilNoWork))
	assert.True(t, fired)
}

func TestTimerArmsEngine(t *testing.T) {
	l, eng := newFakeLoop(t)
	ev := l.NewTimerEvent()
	require.NoError(t, ev.Initialize(time.Hour, ModePersist))
	require.NoError(t, ev.Enable())
	require.NoError(t, l.RunLoop(ModeOnce))
	assert.True(t, eng.Deadline().Equal(ev.t.deadline))

	require.NoError(t, ev.Disable())
	require.NoError(t, l.RunLoop(ModeOnce))
	assert.True(t, eng.Deadline().IsZero())
}
