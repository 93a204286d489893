package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/layerfs/pkg/metrics"
)

// fsMetrics is the Prometheus implementation of metrics.FSMetrics.
type fsMetrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cowTotal      *prometheus.CounterVec
	cowBytes      *prometheus.HistogramVec
	diffFallbacks *prometheus.CounterVec
	chainDepth    prometheus.Histogram
	liveLayers    *prometheus.GaugeVec
}

// NewFSMetrics creates the filesystem collectors on the process registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewFSMetrics() *fsMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return cached(reg, "fs", func() *fsMetrics {
		f := promauto.With(reg)
		return &fsMetrics{
			operations: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "operations_total",
					Help:      "Total filesystem operations by operation and outcome",
				},
				[]string{"operation", "outcome"},
			),
			duration: f.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "operation_duration_milliseconds",
					Help:      "Duration of filesystem operations in milliseconds",
					Buckets: []float64{
						0.05, // in-memory lookups
						0.25,
						1,
						5,
						25,  // diff computation on medium files
						100, // relational round trips
						500,
						2500,
					},
				},
				[]string{"operation"},
			),
			cowTotal: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "cow_total",
					Help:      "Copy-on-write materializations by strategy",
				},
				[]string{"strategy"}, // in-place, full-copy, diff, fallback
			),
			cowBytes: f.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "cow_stored_bytes",
					Help:      "Bytes stored per copy-on-write materialization",
					Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B .. 16MiB
				},
				[]string{"strategy"},
			),
			diffFallbacks: f.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "diff_fallbacks_total",
					Help:      "Diff attempts replaced by a full copy, by reason",
				},
				[]string{"reason"}, // binary, uncertain, ratio, verify
			),
			chainDepth: f.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "chain_depth",
					Help:      "Number of layers in the chain a call resolved against",
					Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
				},
			),
			liveLayers: f.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "live_layers",
					Help:      "Number of live layers per tenant",
				},
				[]string{"tenant"},
			),
		}
	})
}

func (m *fsMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *fsMetrics) RecordCOW(strategy string, bytes int) {
	if m == nil {
		return
	}
	m.cowTotal.WithLabelValues(strategy).Inc()
	if bytes > 0 {
		m.cowBytes.WithLabelValues(strategy).Observe(float64(bytes))
	}
}

func (m *fsMetrics) RecordDiffFallback(reason string) {
	if m == nil {
		return
	}
	m.diffFallbacks.WithLabelValues(reason).Inc()
}

func (m *fsMetrics) ObserveChainDepth(depth int) {
	if m == nil {
		return
	}
	m.chainDepth.Observe(float64(depth))
}

func (m *fsMetrics) SetLiveLayers(tenant string, n int) {
	if m == nil {
		return
	}
	m.liveLayers.WithLabelValues(tenant).Set(float64(n))
}
