//go:build linux
// +build linux

// File: reactor/supported_linux.go
// Author: momentics <momentics@gmail.com>

package reactor

// Supported reports whether any built-in engine exists for this platform.
func Supported() bool { return true }
