package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/layerfs/pkg/metrics"
)

// chainCacheMetrics is the Prometheus implementation of
// metrics.ChainCacheMetrics.
type chainCacheMetrics struct {
	lookups   *prometheus.CounterVec
	evictions prometheus.Counter
}

// NewChainCacheMetrics creates the chain cache collectors.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewChainCacheMetrics() *chainCacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return cached(reg, "chain_cache", func() *chainCacheMetrics {
		return &chainCacheMetrics{
			lookups: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "chain_cache_lookups_total",
					Help:      "Layer chain cache lookups by result",
				},
				[]string{"result"}, // hit, miss
			),
			evictions: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "chain_cache_evictions_total",
					Help:      "Layer chains evicted from the cache",
				},
			),
		}
	})
}

func (m *chainCacheMetrics) RecordChainLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *chainCacheMetrics) RecordChainEviction(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}
