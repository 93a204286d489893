package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/layerfs/pkg/metrics"
)

// storeMetrics is the Prometheus implementation of metrics.StoreMetrics.
type storeMetrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewStoreMetrics creates the metadata store collectors.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStoreMetrics() *storeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return cached(reg, "store", func() *storeMetrics {
		return &storeMetrics{
			transactions: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "store_transactions_total",
					Help:      "Metadata store transactions by backend and outcome",
				},
				[]string{"backend", "outcome"},
			),
			duration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "store_transaction_duration_milliseconds",
					Help:      "Duration of metadata store transactions in milliseconds",
					Buckets:   []float64{0.05, 0.25, 1, 5, 25, 100, 500, 2500},
				},
				[]string{"backend"},
			),
		}
	})
}

func (m *storeMetrics) ObserveTransaction(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(backend, outcome).Inc()
	m.duration.WithLabelValues(backend).Observe(float64(d.Microseconds()) / 1000.0)
}
