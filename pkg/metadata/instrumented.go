package metadata

import (
	"context"
	"time"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metrics"
)

// instrumentedStore records transaction outcomes and latency for a backend.
type instrumentedStore struct {
	Store
	backend string
	metrics metrics.StoreMetrics
}

// Instrument wraps s so every WithTransaction call is observed by m under the
// given backend label. A nil m returns s unchanged.
func Instrument(s Store, backend string, m metrics.StoreMetrics) Store {
	if m == nil {
		return s
	}
	return &instrumentedStore{Store: s, backend: backend, metrics: m}
}

func (s *instrumentedStore) WithTransaction(ctx context.Context, tenant string, fn func(tx Transaction) error) error {
	start := time.Now()
	err := s.Store.WithTransaction(ctx, tenant, fn)

	outcome := OutcomeOf(err)
	s.metrics.ObserveTransaction(s.backend, outcome, time.Since(start))
	if outcome == metrics.OutcomeRetry {
		logger.DebugCtx(ctx, "Transaction conflict",
			logger.StoreType(s.backend), logger.Tenant(tenant), logger.Err(err))
	}
	return err
}

// OutcomeOf maps the result of a call to a metric outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.IsRetryable(err):
		return metrics.OutcomeRetry
	case errors.Is(err, errors.ErrStorageFailure):
		return metrics.OutcomeError
	default:
		// Domain errors returned by fn (not found, exists, ...) are a
		// successful round trip to the store.
		return metrics.OutcomeInvalid
	}
}
