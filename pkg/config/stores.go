package config

import (
	"fmt"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/store/badger"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
	"github.com/marmos91/layerfs/pkg/metadata/store/relational"
	"github.com/marmos91/layerfs/pkg/metrics"
)

// CreateStore opens the record store selected by cfg.Type. The store is
// instrumented when metrics are enabled.
func CreateStore(cfg StoreConfig) (metadata.Store, error) {
	var (
		s   metadata.Store
		err error
	)

	switch cfg.Type {
	case StoreMemory:
		s = memory.NewMemoryStore()
	case StoreBadger:
		s, err = createBadgerStore(cfg.Badger)
	case StoreSQLite, StorePostgres:
		s, err = createRelationalStore(cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Record store opened", logger.StoreType(cfg.Type))
	return metadata.Instrument(s, cfg.Type, metrics.NewStoreMetrics()), nil
}

func createBadgerStore(cfg badger.Config) (metadata.Store, error) {
	s, err := badger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return s, nil
}

func createRelationalStore(cfg StoreConfig) (metadata.Store, error) {
	s, err := relational.New(cfg.relational())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Type, err)
	}
	return s, nil
}
