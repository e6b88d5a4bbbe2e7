//go:build linux
// +build linux

// File: event/thread_linux.go
// Author: momentics <momentics@gmail.com>

package event

import "golang.org/x/sys/unix"

// threadID identifies the calling OS thread. The loop goroutine is locked to
// its thread while running, so equality means "called from the loop".
func threadID() int64 { return int64(unix.Gettid()) }
