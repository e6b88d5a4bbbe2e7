// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package event implements the single-threaded reactor of hioload-ev.
//
// A Loop owns one api.Engine and runs every callback on one OS thread: fd
// readiness (FdEvent), timers (TimerEvent), signals (SignalEvent) and deferred
// functions queued with RunInLoop or RunNext. RunInLoop is the only entry point
// that is safe from other goroutines; everything else belongs to the loop thread.
//
// Each cycle the loop moves cross-thread work into its ready queue, drains it in
// FIFO order, fires expired timers, then polls the engine and dispatches
// readiness. Work deferred with RunNext runs on the following cycle, which is
// how a callback safely closes the event that invoked it.
//
// Callbacks must not let panics escape: the loop does not recover them.
package event
