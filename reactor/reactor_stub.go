//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// No engine is registered on this platform; New reports api.ErrNotSupported.
// Embedders may still drive a Loop through an engine of their own.

package reactor

// Supported reports whether any built-in engine exists for this platform.
func Supported() bool { return false }
