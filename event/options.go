// File: event/options.go
// Author: momentics <momentics@gmail.com>

package event

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/control"
)

type config struct {
	engineName  string
	engine      api.Engine
	logger      *slog.Logger
	waterLine   WaterLine
	metrics     *control.MetricsRegistry
	probes      *control.DebugProbes
	cpu         int
	strict      bool
	readiness   int
	statPublish time.Duration
}

func defaultConfig() config {
	return config{
		waterLine:   DefaultWaterLine,
		cpu:         -1,
		readiness:   64,
		statPublish: time.Second,
	}
}

// Option configures a Loop.
type Option func(*config)

// WithEngine selects a registered backend by name (see Engines).
func WithEngine(name string) Option {
	return func(c *config) { c.engineName = name }
}

// WithEngineInstance hands the loop a ready engine; the loop takes ownership
// and closes it on Close.
func WithEngineInstance(e api.Engine) Option {
	return func(c *config) { c.engine = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

func WithWaterLine(w WaterLine) Option {
	return func(c *config) { c.waterLine = w }
}

// WithMetrics publishes loop statistics under "loop.<id>." at most once a second.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(c *config) { c.metrics = m }
}

// WithDebugProbes registers a "loop.<id>" probe returning Stat.
func WithDebugProbes(p *control.DebugProbes) Option {
	return func(c *config) { c.probes = p }
}

// WithCPUAffinity pins the loop thread to cpu. The goroutine calling RunLoop
// keeps that thread after RunLoop returns, so the pinning never leaks to
// other goroutines.
func WithCPUAffinity(cpu int) Option {
	return func(c *config) { c.cpu = cpu }
}

// WithStrictThreadCheck turns cross-thread event mutation from an error log
// into a panic.
func WithStrictThreadCheck(strict bool) Option {
	return func(c *config) { c.strict = strict }
}

// WithSettings applies the loop part of control.Settings.
func WithSettings(s control.Settings) Option {
	return func(c *config) {
		if s.Engine != "" {
			c.engineName = s.Engine
		}
		c.cpu = s.CPU
		c.strict = s.StrictThreadCheck
		c.waterLine = c.waterLine.merge(s.WaterLine)
	}
}
