//go:build !linux
// +build !linux

// File: event/thread_other.go
// Author: momentics <momentics@gmail.com>

package event

import (
	"bytes"
	"runtime"
	"strconv"
)

// threadID falls back to the goroutine id where no thread id syscall is
// exposed. The loop goroutine never changes while RunLoop runs, so the
// comparison stays exact.
func threadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	f := bytes.Fields(buf[:n])
	if len(f) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(f[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
