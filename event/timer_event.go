// File: event/timer_event.go
// Author: momentics <momentics@gmail.com>

package event

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-ev/api"
)

// TimerEvent fires after each interval. A persistent timer keeps its phase:
// the n-th firing is due at enable time + n*interval.
type TimerEvent struct {
	eventBase
	interval time.Duration
	cb       func()
	t        *timer
}

// NewTimerEvent creates a disabled, uninitialized TimerEvent owned by the caller.
func (l *Loop) NewTimerEvent() *TimerEvent {
	return &TimerEvent{eventBase: eventBase{loop: l, kind: "TimerEvent"}}
}

// Initialize sets the interval (> 0) and mode. An enabled timer is disabled first.
func (e *TimerEvent) Initialize(interval time.Duration, mode Mode) error {
	e.loop.assertInLoop("TimerEvent.Initialize")
	if e.closed {
		return fmt.Errorf("event: TimerEvent: %w", api.ErrClosed)
	}
	if interval <= 0 {
		return fmt.Errorf("event: TimerEvent interval %v: %w", interval, api.ErrInvalidArgument)
	}
	if err := e.Disable(); err != nil {
		return err
	}
	e.interval = interval
	e.mode = mode
	e.initialized = true
	return nil
}

func (e *TimerEvent) SetCallback(cb func()) { e.cb = cb }

// Interval returns the configured interval.
func (e *TimerEvent) Interval() time.Duration { return e.interval }

// Enable arms the timer; the first firing is one interval from now.
func (e *TimerEvent) Enable() error {
	if err := e.checkEnable(); err != nil {
		return err
	}
	if e.enabled {
		return nil
	}
	repeat := 0
	if e.mode == ModeOneshot {
		repeat = 1
	}
	e.t = e.loop.addTimer(e.interval, repeat, e.fire)
	e.enabled = true
	return nil
}

func (e *TimerEvent) Disable() error {
	e.loop.assertInLoop("TimerEvent.Disable")
	if !e.enabled {
		return nil
	}
	e.loop.deleteTimer(e.t)
	e.t = nil
	e.enabled = false
	return nil
}

func (e *TimerEvent) Close() error {
	return e.closeWith(e.Disable, func() { e.cb = nil })
}

func (e *TimerEvent) fire() {
	if e.mode == ModeOneshot {
		// the heap already dropped the entry
		e.t = nil
		e.enabled = false
	}
	if e.cb == nil {
		return
	}
	e.loop.invokeEvent(&e.eventBase, e.cb, e.loop.WaterLine())
}
