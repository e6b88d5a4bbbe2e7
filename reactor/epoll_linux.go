//go:build linux
// +build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) engine. Wake-ups go through an eventfd and ArmTimer through a
// timerfd, both registered in the same epoll set and drained internally.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-ev/api"
)

func init() { register("epoll", newEpollEngine) }

// epollEngine implements api.Engine using level-triggered epoll.
type epollEngine struct {
	epfd    int
	wakeFd  int // eventfd
	timerFd int // timerfd, CLOCK_MONOTONIC
	raw     []unix.EpollEvent
	closed  atomic.Bool
}

func newEpollEngine() (api.Engine, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	e := &epollEngine{epfd: epfd, wakeFd: -1, timerFd: -1, raw: make([]unix.EpollEvent, 64)}

	e.wakeFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	e.timerFd, err = unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("timerfd create: %w", err)
	}
	for _, fd := range []int{e.wakeFd, e.timerFd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			e.Close()
			return nil, fmt.Errorf("epoll ctl add: %w", err)
		}
	}
	return e, nil
}

func (e *epollEngine) Name() string { return "epoll" }

// Watch adds fd or, when it is already present, modifies its mask.
func (e *epollEngine) Watch(fd int, events api.IOEvents) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl fd %d: %w", fd, err)
	}
	return nil
}

// Unwatch removes fd. A descriptor the kernel already dropped (closed) is not an error.
func (e *epollEngine) Unwatch(fd int) error {
	err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (e *epollEngine) ArmTimer(deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		d = 1 // zero would disarm
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(int64(d))}
	if err := unix.TimerfdSettime(e.timerFd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd settime: %w", err)
	}
	return nil
}

func (e *epollEngine) DisarmTimer() error {
	var spec unix.ItimerSpec
	if err := unix.TimerfdSettime(e.timerFd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd settime: %w", err)
	}
	return nil
}

// Poll waits for readiness. EINTR is reported as zero events.
func (e *epollEngine) Poll(timeout time.Duration, out []api.Readiness) (int, error) {
	if len(e.raw) < len(out)+2 {
		e.raw = make([]unix.EpollEvent, len(out)+2)
	}
	n, err := unix.EpollWait(e.epfd, e.raw[:len(out)+2], msTimeout(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	cnt := 0
	for i := 0; i < n; i++ {
		fd := int(e.raw[i].Fd)
		switch fd {
		case e.wakeFd:
			drain(e.wakeFd)
		case e.timerFd:
			drain(e.timerFd)
		default:
			if cnt < len(out) {
				out[cnt] = api.Readiness{Fd: fd, Events: fromEpoll(e.raw[i].Events)}
				cnt++
			}
		}
	}
	return cnt, nil
}

// Wake bumps the eventfd counter; a full counter still leaves it readable.
func (e *epollEngine) Wake() error {
	if e.closed.Load() {
		return api.ErrClosed
	}
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(e.wakeFd, buf); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (e *epollEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, fd := range []int{e.timerFd, e.wakeFd} {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
	return unix.Close(e.epfd)
}

func toEpoll(events api.IOEvents) uint32 {
	var ev uint32
	if events&api.EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if events&api.EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	if events&api.EventHangup != 0 {
		ev |= unix.EPOLLRDHUP
	}
	return ev
}

func fromEpoll(ev uint32) api.IOEvents {
	var events api.IOEvents
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		events |= api.EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		events |= api.EventWrite
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= api.EventHangup
	}
	if ev&unix.EPOLLERR != 0 {
		events |= api.EventError
	}
	return events
}

// drain empties a non-blocking counter descriptor (eventfd, timerfd, pipe).
func drain(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil || n < len(buf) {
			return
		}
	}
}
