package metadata_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
	"github.com/marmos91/layerfs/pkg/metrics"
)

type recordedTx struct {
	backend string
	outcome string
}

type fakeStoreMetrics struct {
	mu  sync.Mutex
	txs []recordedTx
}

func (f *fakeStoreMetrics) ObserveTransaction(backend, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, recordedTx{backend, outcome})
}

func TestInstrumentNilMetrics(t *testing.T) {
	s := memory.NewMemoryStore()
	assert.Same(t, metadata.Store(s), metadata.Instrument(s, "memory", nil))
}

func TestInstrumentRecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	fake := &fakeStoreMetrics{}
	s := metadata.Instrument(memory.NewMemoryStore(), "memory", fake)

	_, err := s.EnsureTenant(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, s.WithTransaction(ctx, "acme", func(tx metadata.Transaction) error {
		return nil
	}))

	err = s.WithTransaction(ctx, "acme", func(tx metadata.Transaction) error {
		_, err := tx.GetLayer(ctx, "missing")
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

	err = s.WithTransaction(ctx, "acme", func(tx metadata.Transaction) error {
		return errors.NewStorageError("commit", context.DeadlineExceeded, true)
	})
	assert.True(t, errors.IsRetryable(err))

	err = s.WithTransaction(ctx, "acme", func(tx metadata.Transaction) error {
		return errors.NewStorageError("commit", context.DeadlineExceeded, false)
	})
	require.Error(t, err)

	assert.Equal(t, []recordedTx{
		{"memory", metrics.OutcomeOK},
		{"memory", metrics.OutcomeInvalid},
		{"memory", metrics.OutcomeRetry},
		{"memory", metrics.OutcomeError},
	}, fake.txs)
}
