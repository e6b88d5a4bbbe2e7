// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the I/O multiplexing engines behind the event loop:
// an epoll backend (default) and a poll(2) backend on Linux, selected by name
// through a registry at loop construction time.
package reactor
