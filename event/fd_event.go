// File: event/fd_event.go
// Author: momentics <momentics@gmail.com>
//
// Descriptor readiness events. Several FdEvents may watch one fd; the loop
// keeps a single engine registration per fd carrying the union of their masks.

package event

import (
	"fmt"
	"slices"

	"github.com/momentics/hioload-ev/api"
)

const fdInterest = api.EventRead | api.EventWrite | api.EventHangup

// FdEvent reports readiness of one descriptor.
type FdEvent struct {
	eventBase
	fd       int
	events   api.IOEvents
	cb       func(fired api.IOEvents)
	internal bool // loop plumbing, ignored by ModeUntilNoWork
}

// NewFdEvent creates a disabled, uninitialized FdEvent owned by the caller.
func (l *Loop) NewFdEvent() *FdEvent {
	return &FdEvent{eventBase: eventBase{loop: l, kind: "FdEvent"}, fd: -1}
}

// Initialize sets the descriptor, the interest mask (EventRead, EventWrite,
// EventHangup) and the mode. An enabled event is disabled first.
func (e *FdEvent) Initialize(fd int, events api.IOEvents, mode Mode) error {
	e.loop.assertInLoop("FdEvent.Initialize")
	if e.closed {
		return fmt.Errorf("event: FdEvent: %w", api.ErrClosed)
	}
	if fd < 0 || events&fdInterest == 0 || events&^(fdInterest|api.EventError) != 0 {
		return fmt.Errorf("event: FdEvent fd %d events %s: %w", fd, events, api.ErrInvalidArgument)
	}
	if err := e.Disable(); err != nil {
		return err
	}
	e.fd = fd
	e.events = events & fdInterest
	e.mode = mode
	e.initialized = true
	return nil
}

// SetCallback sets the function receiving the fired mask. EventError is
// always reported, EventHangup also when only EventRead was requested.
func (e *FdEvent) SetCallback(cb func(fired api.IOEvents)) { e.cb = cb }

// Fd returns the watched descriptor, -1 before Initialize.
func (e *FdEvent) Fd() int { return e.fd }

// Events returns the interest mask.
func (e *FdEvent) Events() api.IOEvents { return e.events }

func (e *FdEvent) Enable() error {
	if err := e.checkEnable(); err != nil {
		return err
	}
	if e.enabled {
		return nil
	}
	if err := e.loop.watchFd(e); err != nil {
		return err
	}
	e.enabled = true
	return nil
}

func (e *FdEvent) Disable() error {
	e.loop.assertInLoop("FdEvent.Disable")
	if !e.enabled {
		return nil
	}
	e.enabled = false
	return e.loop.unwatchFd(e)
}

func (e *FdEvent) Close() error {
	return e.closeWith(e.Disable, func() { e.cb = nil })
}

// delivered filters fired down to what this event asked for.
func (e *FdEvent) delivered(fired api.IOEvents) api.IOEvents {
	mask := e.events | api.EventError
	if e.events&api.EventRead != 0 {
		mask |= api.EventHangup
	}
	return fired & mask
}

func (l *Loop) watchFd(e *FdEvent) error {
	ent := l.fds[e.fd]
	if ent == nil {
		ent = &fdEntry{fd: e.fd}
		l.fds[e.fd] = ent
	}
	ent.events = append(ent.events, e)
	if err := l.syncFd(ent); err != nil {
		ent.events = ent.events[:len(ent.events)-1]
		if len(ent.events) == 0 {
			delete(l.fds, e.fd)
		}
		return err
	}
	if !e.internal {
		l.userWatches++
	}
	return nil
}

func (l *Loop) unwatchFd(e *FdEvent) error {
	if !e.internal {
		l.userWatches--
	}
	ent := l.fds[e.fd]
	if ent == nil {
		return nil
	}
	if i := slices.Index(ent.events, e); i >= 0 {
		ent.events = slices.Delete(ent.events, i, i+1)
	}
	if len(ent.events) == 0 {
		delete(l.fds, e.fd)
		if l.closed {
			return nil
		}
		if err := l.engine.Unwatch(e.fd); err != nil {
			return fmt.Errorf("event: unwatch fd %d: %w", e.fd, err)
		}
		return nil
	}
	return l.syncFd(ent)
}

// syncFd pushes the union mask of ent to the engine when it changed.
func (l *Loop) syncFd(ent *fdEntry) error {
	var mask api.IOEvents
	for _, ev := range ent.events {
		mask |= ev.events
	}
	if mask == ent.mask || l.closed {
		ent.mask = mask
		return nil
	}
	if err := l.engine.Watch(ent.fd, mask); err != nil {
		return fmt.Errorf("event: watch fd %d %s: %w", ent.fd, mask, err)
	}
	ent.mask = mask
	return nil
}

// dispatchFd delivers one readiness notification to a snapshot of the fd's
// events, skipping those disabled by an earlier callback of the same pass.
func (l *Loop) dispatchFd(r api.Readiness, wl WaterLine) {
	ent := l.fds[r.Fd]
	if ent == nil {
		return
	}
	snapshot := slices.Clone(ent.events)
	for _, ev := range snapshot {
		if !ev.enabled || ev.fd != r.Fd {
			continue
		}
		fired := ev.delivered(r.Events)
		if fired == 0 {
			continue
		}
		if ev.mode == ModeOneshot {
			if err := ev.Disable(); err != nil {
				l.log.Warn("oneshot fd event disable failed", "fd", ev.fd, "error", err)
			}
		}
		if ev.cb == nil {
			continue
		}
		cb := ev.cb
		l.invokeEvent(&ev.eventBase, func() { cb(fired) }, wl)
	}
}
