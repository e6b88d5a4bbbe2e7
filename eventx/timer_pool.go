// File: eventx/timer_pool.go
// Author: momentics <momentics@gmail.com>
//
// TimerPool manages fire-and-forget timers addressed by tokens, so callers
// never hold TimerEvent pointers. Loop thread only.

package eventx

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-ev/api"
	"github.com/momentics/hioload-ev/cabinet"
	"github.com/momentics/hioload-ev/event"
)

// TimerToken identifies a timer of a TimerPool.
type TimerToken = cabinet.Token

// TimerCallback receives the token of the timer that fired.
type TimerCallback func(TimerToken)

// TimerPool owns a set of TimerEvents on one loop.
type TimerPool struct {
	loop   *event.Loop
	timers cabinet.Cabinet[event.TimerEvent]
}

func NewTimerPool(loop *event.Loop) *TimerPool {
	return &TimerPool{loop: loop}
}

// DoEvery fires cb every interval until cancelled.
func (p *TimerPool) DoEvery(interval time.Duration, cb TimerCallback) (TimerToken, error) {
	return p.start(interval, event.ModePersist, cb)
}

// DoAfter fires cb once after delay. The timer is released before cb runs.
func (p *TimerPool) DoAfter(delay time.Duration, cb TimerCallback) (TimerToken, error) {
	return p.start(delay, event.ModeOneshot, cb)
}

// DoAt fires cb once at the given time; a time in the past fires on the next
// cycle.
func (p *TimerPool) DoAt(at time.Time, cb TimerCallback) (TimerToken, error) {
	d := time.Until(at)
	if d <= 0 {
		d = time.Nanosecond
	}
	return p.start(d, event.ModeOneshot, cb)
}

// Cancel stops a timer. It reports false for unknown, fired or already
// cancelled tokens.
func (p *TimerPool) Cancel(token TimerToken) bool {
	ev := p.timers.Free(token)
	if ev == nil {
		return false
	}
	p.release(ev)
	return true
}

// Cleanup cancels every timer.
func (p *TimerPool) Cleanup() {
	var all []*event.TimerEvent
	p.timers.Range(func(_ TimerToken, ev *event.TimerEvent) bool {
		all = append(all, ev)
		return true
	})
	p.timers.Clear()
	for _, ev := range all {
		p.release(ev)
	}
}

// Size returns the number of live timers.
func (p *TimerPool) Size() int { return p.timers.Size() }

func (p *TimerPool) start(d time.Duration, mode event.Mode, cb TimerCallback) (TimerToken, error) {
	if cb == nil {
		return TimerToken{}, fmt.Errorf("eventx: nil timer callback: %w", api.ErrInvalidArgument)
	}
	ev := p.loop.NewTimerEvent()
	if err := ev.Initialize(d, mode); err != nil {
		return TimerToken{}, err
	}
	token := p.timers.Alloc(ev)
	ev.SetCallback(func() {
		if mode == event.ModeOneshot {
			if p.timers.Free(token) == nil {
				return
			}
			p.release(ev)
		}
		cb(token)
	})
	if err := ev.Enable(); err != nil {
		p.timers.Free(token)
		return TimerToken{}, err
	}
	return token, nil
}

// release closes a timer. Close defers its own cleanup when called from the
// timer's callback, so this is safe from anywhere on the loop thread.
func (p *TimerPool) release(ev *event.TimerEvent) {
	_ = ev.Close()
}
