package metrics

import "time"

// StoreMetrics records metadata store transaction behavior.
type StoreMetrics interface {
	// ObserveTransaction records one WithTransaction call on backend.
	// outcome is one of the Outcome* constants.
	ObserveTransaction(backend, outcome string, d time.Duration)
}

var newStoreMetrics func() StoreMetrics

// RegisterStoreMetricsConstructor registers the StoreMetrics implementation.
func RegisterStoreMetricsConstructor(constructor func() StoreMetrics) {
	newStoreMetrics = constructor
}

// NewStoreMetrics returns the registered StoreMetrics, or nil.
func NewStoreMetrics() StoreMetrics {
	if !IsEnabled() || newStoreMetrics == nil {
		return nil
	}
	return newStoreMetrics()
}
