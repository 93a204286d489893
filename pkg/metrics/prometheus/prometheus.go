// Package prometheus implements the layerfs metric interfaces on the
// Prometheus client. Importing it (usually blank, from the binary) registers
// the constructors with pkg/metrics.
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/layerfs/pkg/metrics"
)

const namespace = "layerfs"

func init() {
	metrics.RegisterFSMetricsConstructor(func() metrics.FSMetrics { return NewFSMetrics() })
	metrics.RegisterChainCacheMetricsConstructor(func() metrics.ChainCacheMetrics { return NewChainCacheMetrics() })
	metrics.RegisterStoreMetricsConstructor(func() metrics.StoreMetrics { return NewStoreMetrics() })
}

// instances caches one collector set per registry: promauto panics when the
// same metric name is registered twice.
var (
	instancesMu sync.Mutex
	instances   = map[*prometheus.Registry]map[string]any{}
)

func cached[T any](reg *prometheus.Registry, key string, build func() T) T {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	byKey, ok := instances[reg]
	if !ok {
		byKey = map[string]any{}
		instances[reg] = byKey
	}
	if v, ok := byKey[key]; ok {
		return v.(T)
	}
	v := build()
	byKey[key] = v
	return v
}
