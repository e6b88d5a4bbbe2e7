// Author: momentics <momentics@gmail.com>

// Package eventx holds helpers built on top of the event loop.
package eventx
