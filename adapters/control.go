// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter bundling the control package primitives behind api.Control,
// plus the options that hand them to loops and thread pools.

package adapters

import (
	"log/slog"

	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/control"
	"github.com/momentics/hioload-ev/core/concurrency"
	"github.com/momentics/hioload-ev/event"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter creates the stores and registers the platform probes.
func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges published metrics with a fresh probe dump; probe keys get a
// "debug." prefix.
func (c *ControlAdapter) Stats() map[string]any {
	combined := c.metrics.GetSnapshot()
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func(snapshot map[string]any)) {
	c.config.OnReload(fn)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// Config exposes the store, e.g. for ConfigStore.WatchFile.
func (c *ControlAdapter) Config() *control.ConfigStore { return c.config }

// LoopOptions wires a loop's statistics and probe into this adapter.
func (c *ControlAdapter) LoopOptions() []event.Option {
	return []event.Option{event.WithMetrics(c.metrics), event.WithDebugProbes(c.debug)}
}

// PoolOptions wires a thread pool's counters into this adapter.
func (c *ControlAdapter) PoolOptions(logger *slog.Logger) []concurrency.Option {
	return []concurrency.Option{concurrency.WithMetrics(c.metrics), concurrency.WithLogger(logger)}
}
