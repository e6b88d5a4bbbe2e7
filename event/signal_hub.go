// File: event/signal_hub.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide signal fan-out. The first loop subscribing to a signal installs
// os/signal delivery and a relay goroutine; the relay only writes the signal
// number into each subscribed loop's pipe. The last unsubscribe stops delivery,
// restoring the previous disposition.

package event

import (
	"encoding/binary"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

const signoSize = 4

type sigRelay struct {
	ch   chan os.Signal
	fds  map[int]struct{} // write ends of loop pipes
	done chan struct{}
}

var hub = struct {
	mu   sync.Mutex
	sigs map[syscall.Signal]*sigRelay
}{sigs: make(map[syscall.Signal]*sigRelay)}

func hubSubscribe(signo syscall.Signal, fd int) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	r := hub.sigs[signo]
	if r == nil {
		r = &sigRelay{
			ch:   make(chan os.Signal, 16),
			fds:  make(map[int]struct{}),
			done: make(chan struct{}),
		}
		hub.sigs[signo] = r
		signal.Notify(r.ch, signo)
		go r.relay(signo)
	}
	r.fds[fd] = struct{}{}
}

func hubUnsubscribe(signo syscall.Signal, fd int) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	r := hub.sigs[signo]
	if r == nil {
		return
	}
	delete(r.fds, fd)
	if len(r.fds) > 0 {
		return
	}
	signal.Stop(r.ch)
	close(r.done)
	delete(hub.sigs, signo)
}

// hubSubscribers reports how many loop pipes receive signo.
func hubSubscribers(signo syscall.Signal) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if r := hub.sigs[signo]; r != nil {
		return len(r.fds)
	}
	return 0
}

func (r *sigRelay) relay(signo syscall.Signal) {
	var buf [signoSize]byte
	binary.NativeEndian.PutUint32(buf[:], uint32(signo))
	for {
		select {
		case <-r.ch:
		case <-r.done:
			return
		}
		// writes happen under the hub lock so a pipe is never written after
		// its loop unsubscribed and closed it
		hub.mu.Lock()
		for fd := range r.fds {
			// a full pipe already holds a pending wake-up; dropping is fine
			_, _ = unix.Write(fd, buf[:])
		}
		hub.mu.Unlock()
	}
}
