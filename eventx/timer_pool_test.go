package eventx

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/event"
)

func newLoop(t *testing.T) *event.Loop {
	t.Helper()
	l, err := event.New(event.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestDoAfter(t *testing.T) {
	l := newLoop(t)
	p := NewTimerPool(l)
	var fired []TimerToken
	start := time.Now()
	tok, err := p.DoAfter(10*time.Millisecond, func(tt TimerToken) {
		fired = append(fired, tt)
		assert.Equal(t, 0, p.Size(), "released before the callback")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Size())

	require.NoError(t, l.RunLoop(event.ModeUntilNoWork))
	assert.Equal(t, []TimerToken{tok}, fired)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.False(t, p.Cancel(tok))
}

func TestDoEveryCancelInsideCallback(t *testing.T) {
	l := newLoop(t)
	p := NewTimerPool(l)
	count := 0
	_, err := p.DoEvery(2*time.Millisecond, func(tt TimerToken) {
		count++
		if count == 4 {
			assert.True(t, p.Cancel(tt))
		}
	})
	require.NoError(t, err)
	require.NoError(t, l.RunLoop(event.ModeUntilNoWork))
	assert.Equal(t, 4, count)
	assert.Equal(t, 0, p.Size())
}

func TestDoAtOrder(t *testing.T) {
	l := newLoop(t)
	p := NewTimerPool(l)
	var order []string
	now := time.Now()
	_, err := p.DoAt(now.Add(20*time.Millisecond), func(TimerToken) { order = append(order, "later") })
	require.NoError(t, err)
	_, err = p.DoAt(now.Add(-time.Second), func(TimerToken) { order = append(order, "past") })
	require.NoError(t, err)
	require.NoError(t, l.RunLoop(event.ModeUntilNoWork))
	assert.Equal(t, []string{"past", "later"}, order)
}

func TestCancelBeforeFire(t *testing.T) {
	l := newLoop(t)
	p := NewTimerPool(l)
	fired := false
	tok, err := p.DoAfter(time.Hour, func(TimerToken) { fired = true })
	require.NoError(t, err)
	assert.True(t, p.Cancel(tok))
	assert.False(t, p.Cancel(tok))
	require.NoError(t, l.RunLoop(event.ModeUntilNoWork))
	assert.False(t, fired)
}

func TestCleanup(t *testing.T) {
	l := newLoop(t)
	p := NewTimerPool(l)
	var toks []TimerToken
	for i := 0; i < 5; i++ {
		tok, err := p.DoEvery(time.Hour, func(TimerToken) {})
		require.NoError(t, err)
		toks = append(toks, tok)
	}
	assert.Equal(t, 5, p.Size())
	p.Cleanup()
	assert.Equal(t, 0, p.Size())
	for _, tok := range toks {
		assert.False(t, p.Cancel(tok))
	}
	// nothing armed, so the loop has no work
	start := time.Now()
	require.NoError(t, l.RunLoop(event.ModeUntilNoWork))
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvalidArguments(t *testing.T) {
	p := NewTimerPool(newLoop(t))
	_, err := p.DoAfter(time.Second, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = p.DoEvery(0, func(TimerToken) {})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.Equal(t, 0, p.Size())
}
