// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Engine registry. Backends register a factory from platform files; the loop
// picks one by name once, at construction.

package reactor

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-ev/api"
)

// DefaultEngine is used when New is called with an empty name.
const DefaultEngine = "epoll"

// Factory creates a fresh engine instance.
type Factory func() (api.Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func register(name string, f Factory) {
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

// Engines lists the compiled-in backends in name order.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New constructs the engine registered under name.
func New(name string) (api.Engine, error) {
	if name == "" {
		name = DefaultEngine
	}
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, api.NewError(api.ErrCodeNotSupported, "reactor: unknown engine").
			WithContext("engine", name).
			Wrap(api.ErrNotSupported)
	}
	e, err := f()
	if err != nil {
		return nil, api.NewError(api.ErrCodeResourceExhausted, "reactor: engine init failed").
			WithContext("engine", name).
			Wrap(err)
	}
	return e, nil
}

// msTimeout converts a poll timeout to whole milliseconds, rounding up so a
// deadline is never reported early. Negative means block.
func msTimeout(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
