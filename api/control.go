// File: api/control.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control is the runtime management surface: dynamic config, published
// metrics and debug probes of loops and pools.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	OnReload(fn func(snapshot map[string]any))
	RegisterDebugProbe(name string, fn func() any)
}
