//go:build linux
// +build linux

// File: reactor/poll_linux.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) engine. Keeps its interest set in a slice rebuilt lazily, wakes
// through a non-blocking pipe and turns ArmTimer into a clipped poll timeout.

package reactor

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-ev/api"
)

func init() { register("poll", newPollEngine) }

type pollEngine struct {
	wakeR, wakeW int
	interest     map[int]api.IOEvents
	pfds         []unix.PollFd
	dirty        bool
	deadline     time.Time // zero when disarmed
	closed       atomic.Bool
}

func newPollEngine() (api.Engine, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}
	return &pollEngine{
		wakeR:    p[0],
		wakeW:    p[1],
		interest: make(map[int]api.IOEvents),
		dirty:    true,
	}, nil
}

func (e *pollEngine) Name() string { return "poll" }

func (e *pollEngine) Watch(fd int, events api.IOEvents) error {
	if fd < 0 {
		return api.ErrInvalidArgument
	}
	e.interest[fd] = events
	e.dirty = true
	return nil
}

func (e *pollEngine) Unwatch(fd int) error {
	delete(e.interest, fd)
	e.dirty = true
	return nil
}

func (e *pollEngine) ArmTimer(deadline time.Time) error {
	e.deadline = deadline
	return nil
}

func (e *pollEngine) DisarmTimer() error {
	e.deadline = time.Time{}
	return nil
}

func (e *pollEngine) Poll(timeout time.Duration, out []api.Readiness) (int, error) {
	if e.dirty {
		e.rebuild()
	}
	if !e.deadline.IsZero() {
		d := time.Until(e.deadline)
		if d < 0 {
			d = 0
		}
		if timeout < 0 || d < timeout {
			timeout = d
		}
	}
	for i := range e.pfds {
		e.pfds[i].Revents = 0
	}
	n, err := unix.Poll(e.pfds, msTimeout(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	cnt := 0
	for i := 0; i < len(e.pfds) && n > 0; i++ {
		pfd := e.pfds[i]
		if pfd.Revents == 0 {
			continue
		}
		n--
		if int(pfd.Fd) == e.wakeR {
			drain(e.wakeR)
			continue
		}
		if cnt < len(out) {
			out[cnt] = api.Readiness{Fd: int(pfd.Fd), Events: fromPoll(pfd.Revents)}
			cnt++
		}
	}
	return cnt, nil
}

func (e *pollEngine) Wake() error {
	if e.closed.Load() {
		return api.ErrClosed
	}
	if _, err := unix.Write(e.wakeW, []byte{1}); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("wake pipe write: %w", err)
	}
	return nil
}

func (e *pollEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Close(e.wakeW)
	return unix.Close(e.wakeR)
}

func (e *pollEngine) rebuild() {
	e.pfds = e.pfds[:0]
	e.pfds = append(e.pfds, unix.PollFd{Fd: int32(e.wakeR), Events: unix.POLLIN})
	for fd, ev := range e.interest {
		e.pfds = append(e.pfds, unix.PollFd{Fd: int32(fd), Events: toPoll(ev)})
	}
	e.dirty = false
}

func toPoll(events api.IOEvents) int16 {
	var ev int16
	if events&api.EventRead != 0 {
		ev |= unix.POLLIN | unix.POLLPRI
	}
	if events&api.EventWrite != 0 {
		ev |= unix.POLLOUT
	}
	if events&api.EventHangup != 0 {
		ev |= unix.POLLRDHUP
	}
	return ev
}

func fromPoll(rev int16) api.IOEvents {
	var events api.IOEvents
	if rev&(unix.POLLIN|unix.POLLPRI) != 0 {
		events |= api.EventRead
	}
	if rev&unix.POLLOUT != 0 {
		events |= api.EventWrite
	}
	if rev&(unix.POLLHUP|unix.POLLRDHUP) != 0 {
		events |= api.EventHangup
	}
	if rev&(unix.POLLERR|unix.POLLNVAL) != 0 {
		events |= api.EventError
	}
	return events
}
