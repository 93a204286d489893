package metrics

import "time"

// Outcome labels for ObserveOperation.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeRetry   = "retryable"
	OutcomeInvalid = "invalid"
)

// FSMetrics records filesystem-level activity.
type FSMetrics interface {
	// ObserveOperation records one FileSystem call.
	ObserveOperation(op, outcome string, d time.Duration)

	// RecordCOW records a copy-on-write materialization. bytes is the size
	// of the payload actually stored (the full content or the encoded diff).
	RecordCOW(strategy string, bytes int)

	// RecordDiffFallback records a diff attempt abandoned for a full copy.
	RecordDiffFallback(reason string)

	// ObserveChainDepth records the length of a chain used to resolve a call.
	ObserveChainDepth(depth int)

	// SetLiveLayers reports the number of live layers of a tenant.
	SetLiveLayers(tenant string, n int)
}

// ChainCacheMetrics records layer chain cache behavior.
type ChainCacheMetrics interface {
	RecordChainLookup(hit bool)
	RecordChainEviction(n int)
}

var (
	newFSMetrics         func() FSMetrics
	newChainCacheMetrics func() ChainCacheMetrics
)

// RegisterFSMetricsConstructor registers the FSMetrics implementation.
// Called by pkg/metrics/prometheus during package initialization, which keeps
// this package free of an import cycle.
func RegisterFSMetricsConstructor(constructor func() FSMetrics) {
	newFSMetrics = constructor
}

// RegisterChainCacheMetricsConstructor registers the ChainCacheMetrics
// implementation.
func RegisterChainCacheMetricsConstructor(constructor func() ChainCacheMetrics) {
	newChainCacheMetrics = constructor
}

// NewFSMetrics returns the registered FSMetrics, or nil when metrics are
// disabled or no implementation is linked in.
//
//	metrics.InitRegistry()
//	fs := layerfs.New(store, cfg, layerfs.WithMetrics(metrics.NewFSMetrics()))
func NewFSMetrics() FSMetrics {
	if !IsEnabled() || newFSMetrics == nil {
		return nil
	}
	return newFSMetrics()
}

// NewChainCacheMetrics returns the registered ChainCacheMetrics, or nil.
func NewChainCacheMetrics() ChainCacheMetrics {
	if !IsEnabled() || newChainCacheMetrics == nil {
		return nil
	}
	return newChainCacheMetrics()
}
