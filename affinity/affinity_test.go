//go:build linux
// +build linux

package affinity

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/api"
)

func TestSetAffinity(t *testing.T) {
	var (
		allowed, pinned []int
		errAllowed      error
		errSet, errGet  error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// the locked thread exits with the goroutine, so the pinning never leaks
		runtime.LockOSThread()
		allowed, errAllowed = Current()
		if errAllowed != nil || len(allowed) == 0 {
			return
		}
		errSet = SetAffinity(allowed[0])
		pinned, errGet = Current()
	}()
	<-done

	require.NoError(t, errAllowed)
	require.NotEmpty(t, allowed)
	require.NoError(t, errSet)
	require.NoError(t, errGet)
	assert.Equal(t, []int{allowed[0]}, pinned)
}

func TestSetAffinityOutOfRange(t *testing.T) {
	err := SetAffinity(-1)
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
	err = SetAffinity(MaxCPU)
	assert.True(t, errors.Is(err, api.ErrInvalidArgument))
}
