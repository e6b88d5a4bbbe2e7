// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, debug probes and configuration for hioload-ev.
//
// Provides concurrent-safe primitives shared by loops and pools:
//   - MetricsRegistry: flat key/value gauges published by loops and thread pools
//   - DebugProbes: named callbacks dumped on demand
//   - ConfigStore: key/value settings with reload listeners and file hot reload
//   - Settings: typed runtime settings decoded through viper
package control
