// File: event/signal_event.go
// Author: momentics <momentics@gmail.com>

package event

import (
	"encoding/binary"
	"fmt"
	"slices"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-ev/api"
)

// SignalEvent delivers POSIX signals on the loop thread.
type SignalEvent struct {
	eventBase
	signals []syscall.Signal
	cb      func(signo syscall.Signal)
}

// signalState is the per-loop end of the signal hub: a non-blocking pipe and
// the internal FdEvent reading it.
type signalState struct {
	r, w int
	ev   *FdEvent
	subs map[syscall.Signal][]*SignalEvent
}

// NewSignalEvent creates a disabled, uninitialized SignalEvent owned by the caller.
func (l *Loop) NewSignalEvent() *SignalEvent {
	return &SignalEvent{eventBase: eventBase{loop: l, kind: "SignalEvent"}}
}

// Initialize sets the signals to watch. An enabled event is disabled first.
func (e *SignalEvent) Initialize(signals []syscall.Signal, mode Mode) error {
	e.loop.assertInLoop("SignalEvent.Initialize")
	if e.closed {
		return fmt.Errorf("event: SignalEvent: %w", api.ErrClosed)
	}
	if len(signals) == 0 {
		return fmt.Errorf("event: SignalEvent without signals: %w", api.ErrInvalidArgument)
	}
	for _, s := range signals {
		if s <= 0 || s == syscall.SIGKILL || s == syscall.SIGSTOP {
			return fmt.Errorf("event: SignalEvent signal %d: %w", int(s), api.ErrInvalidArgument)
		}
	}
	if err := e.Disable(); err != nil {
		return err
	}
	e.signals = slices.Compact(slices.Sorted(slices.Values(signals)))
	e.mode = mode
	e.initialized = true
	return nil
}

func (e *SignalEvent) SetCallback(cb func(signo syscall.Signal)) { e.cb = cb }

// Signals returns the watched signals in ascending order.
func (e *SignalEvent) Signals() []syscall.Signal { return slices.Clone(e.signals) }

func (e *SignalEvent) Enable() error {
	if err := e.checkEnable(); err != nil {
		return err
	}
	if e.enabled {
		return nil
	}
	if err := e.loop.subscribeSignals(e); err != nil {
		return err
	}
	e.enabled = true
	return nil
}

func (e *SignalEvent) Disable() error {
	e.loop.assertInLoop("SignalEvent.Disable")
	if !e.enabled {
		return nil
	}
	e.enabled = false
	e.loop.unsubscribeSignals(e)
	return nil
}

func (e *SignalEvent) Close() error {
	return e.closeWith(e.Disable, func() { e.cb = nil })
}

func (l *Loop) ensureSignalPipe() error {
	if l.signals != nil {
		return nil
	}
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return fmt.Errorf("event: signal pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return fmt.Errorf("event: signal pipe nonblock: %w", err)
		}
	}
	st := &signalState{r: p[0], w: p[1], subs: make(map[syscall.Signal][]*SignalEvent)}
	ev := l.NewFdEvent()
	ev.internal = true
	err := ev.Initialize(st.r, api.EventRead, ModePersist)
	if err == nil {
		ev.SetCallback(func(api.IOEvents) { l.readSignals() })
		err = ev.Enable()
	}
	if err != nil {
		unix.Close(p[0])
		unix.Close(p[1])
		return err
	}
	st.ev = ev
	l.signals = st
	return nil
}

func (l *Loop) subscribeSignals(e *SignalEvent) error {
	if err := l.ensureSignalPipe(); err != nil {
		return err
	}
	st := l.signals
	for _, s := range e.signals {
		if len(st.subs[s]) == 0 {
			hubSubscribe(s, st.w)
		}
		st.subs[s] = append(st.subs[s], e)
	}
	l.userWatches++
	return nil
}

func (l *Loop) unsubscribeSignals(e *SignalEvent) {
	l.userWatches--
	st := l.signals
	if st == nil {
		return
	}
	for _, s := range e.signals {
		subs := st.subs[s]
		if i := slices.Index(subs, e); i >= 0 {
			subs = slices.Delete(subs, i, i+1)
		}
		if len(subs) == 0 {
			delete(st.subs, s)
			hubUnsubscribe(s, st.w)
			continue
		}
		st.subs[s] = subs
	}
}

// readSignals drains the pipe and dispatches each signal to a snapshot of its
// subscribers.
func (l *Loop) readSignals() {
	st := l.signals
	if st == nil {
		return
	}
	var buf [signoSize * 64]byte
	for {
		n, err := unix.Read(st.r, buf[:])
		if n <= 0 || err != nil {
			return
		}
		for off := 0; off+signoSize <= n; off += signoSize {
			signo := syscall.Signal(binary.NativeEndian.Uint32(buf[off:]))
			l.dispatchSignal(signo)
		}
		if n < len(buf) {
			return
		}
	}
}

func (l *Loop) dispatchSignal(signo syscall.Signal) {
	wl := l.WaterLine()
	snapshot := slices.Clone(l.signals.subs[signo])
	for _, e := range snapshot {
		if !e.enabled || !slices.Contains(e.signals, signo) {
			continue
		}
		if e.mode == ModeOneshot {
			_ = e.Disable()
		}
		if e.cb == nil {
			continue
		}
		cb := e.cb
		l.invokeEvent(&e.eventBase, func() { cb(signo) }, wl)
	}
}

// closeSignals drops every hub subscription of the loop and closes its pipe.
func (l *Loop) closeSignals() {
	st := l.signals
	if st == nil {
		return
	}
	seen := make(map[*SignalEvent]struct{})
	for s, subs := range st.subs {
		for _, e := range subs {
			seen[e] = struct{}{}
		}
		hubUnsubscribe(s, st.w)
	}
	for e := range seen {
		e.enabled = false
		l.userWatches--
	}
	st.subs = nil
	_ = st.ev.Disable()
	unix.Close(st.r)
	unix.Close(st.w)
	l.signals = nil
}
