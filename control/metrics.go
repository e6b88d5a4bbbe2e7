// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector. Loops and pools publish gauges under a
// "<component>.<id>.<name>" key.

package control

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds the latest value of every published metric.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// SetMany publishes a group of metrics under a common prefix in one update.
func (mr *MetricsRegistry) SetMany(prefix string, values map[string]any) {
	mr.mu.Lock()
	for k, v := range values {
		mr.metrics[prefix+"."+k] = v
	}
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Get returns one metric.
func (mr *MetricsRegistry) Get(key string) (any, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, ok := mr.metrics[key]
	return v, ok
}

// DeletePrefix drops every metric whose key starts with prefix. Used when a
// loop or pool is closed.
func (mr *MetricsRegistry) DeletePrefix(prefix string) {
	mr.mu.Lock()
	for k := range mr.metrics {
		if strings.HasPrefix(k, prefix) {
			delete(mr.metrics, k)
		}
	}
	mr.mu.Unlock()
}

// Keys returns the sorted metric names.
func (mr *MetricsRegistry) Keys() []string {
	mr.mu.RLock()
	keys := make([]string, 0, len(mr.metrics))
	for k := range mr.metrics {
		keys = append(keys, k)
	}
	mr.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Updated reports when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
