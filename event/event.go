// File: event/event.go
// Author: momentics <momentics@gmail.com>
//
// Event contract shared by fd, timer and signal events.

package event

import (
	"fmt"

	"github.com/momentics/hioload-ev/api"
)

// Mode is the re-arming policy of an event.
type Mode int

const (
	// ModePersist keeps the event enabled after it fires.
	ModePersist Mode = iota
	// ModeOneshot disables the event right before its callback runs.
	ModeOneshot
)

func (m Mode) String() string {
	switch m {
	case ModePersist:
		return "persist"
	case ModeOneshot:
		return "oneshot"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Event is the common surface of FdEvent, TimerEvent and SignalEvent. Events
// belong to the loop thread: mutate them from callbacks or through RunInLoop.
type Event interface {
	IsEnabled() bool
	// Enable is idempotent and registers with the engine only once.
	Enable() error
	// Disable is idempotent.
	Disable() error
	Loop() *Loop
	// Close disables the event for good. Inside the event's own callback the
	// release is deferred to the next cycle.
	Close() error
}

type eventBase struct {
	loop        *Loop
	kind        string
	mode        Mode
	enabled     bool
	initialized bool
	closed      bool
	inCallback  int
}

func (b *eventBase) IsEnabled() bool { return b.enabled }

func (b *eventBase) Loop() *Loop { return b.loop }

// Mode returns the mode given to Initialize.
func (b *eventBase) Mode() Mode { return b.mode }

// checkEnable validates the common preconditions of Enable.
func (b *eventBase) checkEnable() error {
	b.loop.assertInLoop(b.kind + ".Enable")
	switch {
	case b.closed:
		return fmt.Errorf("event: %s: %w", b.kind, api.ErrClosed)
	case !b.initialized:
		return fmt.Errorf("event: %s: %w", b.kind, api.ErrNotInitialized)
	}
	return nil
}

// closeWith runs disable, marks the event closed and releases its state now
// or, inside its own callback, on the next cycle.
func (b *eventBase) closeWith(disable func() error, release func()) error {
	if b.closed {
		return nil
	}
	err := disable()
	b.closed = true
	if b.inCallback > 0 && !b.loop.closed {
		b.loop.RunNext(release)
	} else {
		release()
	}
	return err
}
