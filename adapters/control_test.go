package adapters_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ev/adapters"
	"github.com/momentics/hioload-ev/core/concurrency"
	"github.com/momentics/hioload-ev/event"
	"github.com/momentics/hioload-ev/fake"
)

func TestControlAdapterConfig(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	assert.Empty(t, ctrl.GetConfig())

	reloaded := make(chan map[string]any, 1)
	ctrl.OnReload(func(snap map[string]any) { reloaded <- snap })
	require.NoError(t, ctrl.SetConfig(map[string]any{"k": 1}))

	select {
	case snap := <-reloaded:
		assert.Equal(t, 1, snap["k"])
	case <-time.After(2 * time.Second):
		t.Fatal("reload hook not called")
	}
	assert.Equal(t, map[string]any{"k": 1}, ctrl.GetConfig())
}

func TestControlAdapterCollectsLoopAndPool(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := append(ctrl.LoopOptions(), event.WithEngineInstance(fake.NewEngine()), event.WithLogger(quiet))
	loop, err := event.New(opts...)
	require.NoError(t, err)
	defer loop.Close()

	pool := concurrency.NewThreadPool(loop, ctrl.PoolOptions(quiet)...)
	require.NoError(t, pool.Initialize(1, 1))
	defer pool.Cleanup()

	require.NoError(t, loop.RunLoop(event.ModeOnce))
	pool.Stats()

	ctrl.RegisterDebugProbe("custom", func() any { return "ok" })
	stats := ctrl.Stats()

	prefix := "loop." + loop.ID().String()
	assert.Contains(t, stats, prefix+".loop_count")
	assert.Contains(t, stats, "debug."+prefix)
	assert.Equal(t, "ok", stats["debug.custom"])

	var poolKeys int
	for k := range stats {
		if len(k) > 5 && k[:5] == "pool." {
			poolKeys++
		}
	}
	assert.Equal(t, 7, poolKeys)
}
