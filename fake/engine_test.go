package fake

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/api"
)

var _ api.Engine = (*Engine)(nil)

func TestInjectOnlyWatched(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.Watch(3, api.EventRead))
	e.Inject(3, api.EventRead)
	e.Inject(4, api.EventRead)

	out := make([]api.Readiness, 4)
	n, err := e.Poll(0, out)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, api.Readiness{Fd: 3, Events: api.EventRead}, out[0])

	n, err = e.Poll(0, out)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "delivered once")
}

func TestPollHonoursDeadlineAndWake(t *testing.T) {
	e := NewEngine()
	out := make([]api.Readiness, 1)
	require.NoError(t, e.ArmTimer(time.Now().Add(20*time.Millisecond)))
	start := time.Now()
	_, err := e.Poll(-1, out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	require.NoError(t, e.DisarmTimer())
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = e.Wake()
	}()
	_, err = e.Poll(-1, out)
	require.NoError(t, err)
	polls, wakes := e.Stats()
	assert.Equal(t, 2, polls)
	assert.Equal(t, 1, wakes)
}

func TestErrorsAndClose(t *testing.T) {
	e := NewEngine()
	boom := errors.New("boom")
	e.SetWatchError(boom)
	assert.ErrorIs(t, e.Watch(1, api.EventRead), boom)
	e.SetPollError(boom)
	_, err := e.Poll(0, nil)
	assert.ErrorIs(t, err, boom)

	require.NoError(t, e.Close())
	assert.True(t, e.Closed())
	assert.ErrorIs(t, e.Wake(), api.ErrClosed)
}
