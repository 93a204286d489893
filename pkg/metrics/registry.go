// Package metrics defines the metric interfaces recorded by the layerfs
// engine and owns the Prometheus registry they are exported from.
//
// Metrics are opt-in. Until InitRegistry is called every constructor returns
// nil, and every component treats a nil metrics value as "disabled", so the
// hot path pays a single nil check.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process registry with the Go runtime and process
// collectors attached. Calling it again is a no-op.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// ResetRegistry drops the process registry. Tests use it to start from a
// clean slate.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = nil
}
