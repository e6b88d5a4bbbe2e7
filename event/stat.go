// File: event/stat.go
// Author: momentics <momentics@gmail.com>
//
// Loop statistics and warning thresholds.

package event

import (
	"math"
	"time"

	"github.com/momentics/hioload-ev/control"
)

// Stat accumulates loop counters since StatTime.
type Stat struct {
	StatTime      time.Time     // start of the statistic window
	LoopCount     uint64        // cycles completed
	LoopAccCost   time.Duration // busy time summed over cycles, poll wait excluded
	LoopPeakCost  time.Duration
	RunInLoopPeak int // largest ready queue seen at drain start
	RunNextPeak   int
	EventCount    uint64 // event callbacks invoked
}

// WaterLine holds the thresholds above which the loop logs a warning.
type WaterLine struct {
	RunInLoopQueueSize int
	RunNextQueueSize   int
	WakeDelay          time.Duration // RunInLoop from another thread until the cycle starts
	LoopCost           time.Duration
	EventCbCost        time.Duration
	RunCbCost          time.Duration
	RunInLoopDelay     time.Duration // queued until executed
	RunNextDelay       time.Duration
	TimerDelay         time.Duration // deadline until fired
}

// DefaultWaterLine never warns on queue sizes.
var DefaultWaterLine = WaterLine{
	RunInLoopQueueSize: math.MaxInt,
	RunNextQueueSize:   math.MaxInt,
	WakeDelay:          5 * time.Millisecond,
	LoopCost:           100 * time.Millisecond,
	EventCbCost:        50 * time.Millisecond,
	RunCbCost:          50 * time.Millisecond,
	RunInLoopDelay:     10 * time.Millisecond,
	RunNextDelay:       10 * time.Millisecond,
	TimerDelay:         10 * time.Millisecond,
}

// merge overrides w with the non-zero fields of s.
func (w WaterLine) merge(s control.WaterLineSettings) WaterLine {
	setInt := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v time.Duration) {
		if v > 0 {
			*dst = v
		}
	}
	setInt(&w.RunInLoopQueueSize, s.RunInLoopQueueSize)
	setInt(&w.RunNextQueueSize, s.RunNextQueueSize)
	setDur(&w.WakeDelay, s.WakeDelay)
	setDur(&w.LoopCost, s.LoopCost)
	setDur(&w.EventCbCost, s.EventCbCost)
	setDur(&w.RunCbCost, s.RunCbCost)
	setDur(&w.RunInLoopDelay, s.RunInLoopDelay)
	setDur(&w.RunNextDelay, s.RunNextDelay)
	setDur(&w.TimerDelay, s.TimerDelay)
	return w
}

// Stat returns a copy of the counters. Safe from any goroutine.
func (l *Loop) Stat() Stat {
	l.statMu.Lock()
	defer l.statMu.Unlock()
	return l.stat
}

// ResetStat starts a new statistic window.
func (l *Loop) ResetStat() {
	l.statMu.Lock()
	l.stat = Stat{StatTime: time.Now()}
	l.statMu.Unlock()
}

// WaterLine returns the current thresholds.
func (l *Loop) WaterLine() WaterLine {
	l.statMu.Lock()
	defer l.statMu.Unlock()
	return l.waterLine
}

// SetWaterLine replaces the thresholds. Safe from any goroutine.
func (l *Loop) SetWaterLine(w WaterLine) {
	l.statMu.Lock()
	l.waterLine = w
	l.statMu.Unlock()
}

func (l *Loop) endCycle(cost time.Duration, readyPeak, nextPeak int, events uint64) {
	l.statMu.Lock()
	s := &l.stat
	s.LoopCount++
	s.LoopAccCost += cost
	if cost > s.LoopPeakCost {
		s.LoopPeakCost = cost
	}
	if readyPeak > s.RunInLoopPeak {
		s.RunInLoopPeak = readyPeak
	}
	if nextPeak > s.RunNextPeak {
		s.RunNextPeak = nextPeak
	}
	s.EventCount += events
	wl := l.waterLine
	l.statMu.Unlock()

	if cost > wl.LoopCost {
		l.log.Info("loop cost over water line", "cost", cost, "limit", wl.LoopCost)
	}
	if readyPeak > wl.RunInLoopQueueSize {
		l.log.Info("run-in-loop queue over water line", "size", readyPeak, "limit", wl.RunInLoopQueueSize)
	}
	if nextPeak > wl.RunNextQueueSize {
		l.log.Info("run-next queue over water line", "size", nextPeak, "limit", wl.RunNextQueueSize)
	}
	l.publishStat()
}

func (l *Loop) publishStat() {
	if l.cfg.metrics == nil {
		return
	}
	now := time.Now()
	if now.Sub(l.lastPublish) < l.cfg.statPublish {
		return
	}
	l.lastPublish = now
	s := l.Stat()
	l.cfg.metrics.SetMany(l.metricPrefix(), map[string]any{
		"loop_count":       s.LoopCount,
		"loop_acc_cost":    s.LoopAccCost,
		"loop_peak_cost":   s.LoopPeakCost,
		"run_in_loop_peak": s.RunInLoopPeak,
		"run_next_peak":    s.RunNextPeak,
		"event_count":      s.EventCount,
		"engine":           l.engine.Name(),
	})
}

func (l *Loop) metricPrefix() string { return "loop." + l.id.String() }
