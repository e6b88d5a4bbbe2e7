// File: api/engine.go
// Author: momentics <momentics@gmail.com>
//
// Defines the contract every I/O multiplexing backend (epoll, poll, test fakes)
// satisfies so the event loop can drive any of them unchanged.

package api

import (
	"strings"
	"time"
)

// IOEvents is a readiness/interest bitmask.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventHangup
	EventError
)

func (e IOEvents) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  IOEvents
		name string
	}{{EventRead, "read"}, {EventWrite, "write"}, {EventHangup, "hangup"}, {EventError, "error"}} {
		if e&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Readiness is one notification produced by Engine.Poll.
type Readiness struct {
	Fd     int
	Events IOEvents
}

// Engine is a pluggable I/O multiplexer. All methods except Wake are called
// from the loop goroutine only.
type Engine interface {
	// Name returns the registry name of the backend.
	Name() string

	// Watch adds fd to the interest set or replaces its mask.
	Watch(fd int, events IOEvents) error

	// Unwatch removes fd from the interest set.
	Unwatch(fd int) error

	// ArmTimer makes a blocked Poll return no later than deadline.
	ArmTimer(deadline time.Time) error

	// DisarmTimer cancels a deadline set by ArmTimer.
	DisarmTimer() error

	// Poll waits up to timeout (negative blocks) and fills out with ready
	// descriptors. Wake-ups and timer expiry are consumed internally and
	// never reported.
	Poll(timeout time.Duration, out []Readiness) (int, error)

	// Wake interrupts a blocked Poll. Safe from any goroutine.
	Wake() error

	// Close releases the backend.
	Close() error
}
