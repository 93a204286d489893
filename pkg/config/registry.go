package config

import (
	"github.com/marmos91/layerfs/pkg/cow"
	"github.com/marmos91/layerfs/pkg/filetype"
	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metrics"
)

// FileSystemOptions maps the configuration onto layerfs.Options.
func FileSystemOptions(cfg *Config) layerfs.Options {
	return layerfs.Options{
		Layers: layer.Config{
			MaxChainDepth:  cfg.Layers.MaxChainDepth,
			ChainCacheSize: cfg.Layers.ChainCacheSize,
			RootName:       cfg.Layers.RootName,
		},
		Detection: filetype.Config{
			SampleWindow:         int(cfg.Detection.SampleWindow),
			BinaryRatioThreshold: cfg.Detection.BinaryRatioThreshold,
		},
		COW: cow.Config{
			DisableDiff:     cfg.COW.DisableDiff,
			MaxDiffRatio:    cfg.COW.MaxDiffRatio,
			MaxDiffFileSize: cfg.COW.MaxDiffFileSize.Uint64(),
			MaxFileSize:     cfg.Limits.MaxFileSize.Uint64(),
		},
		Limits: metadata.Limits{
			MaxPathLen: cfg.Limits.MaxPathLen,
			MaxNameLen: cfg.Limits.MaxNameLen,
		},
		ControlPath: cfg.Control.Path,
		Capacity:    cfg.Limits.Capacity.Uint64(),
	}
}

// NewFileSystem opens the configured store and builds a FileSystem over it.
// The caller closes the returned store.
func NewFileSystem(cfg *Config) (*layerfs.FileSystem, metadata.Store, error) {
	store, err := CreateStore(cfg.Store)
	if err != nil {
		return nil, nil, err
	}

	fs, err := layerfs.New(store, FileSystemOptions(cfg),
		layerfs.WithMetrics(metrics.NewFSMetrics()),
		layerfs.WithChainCacheMetrics(metrics.NewChainCacheMetrics()))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return fs, store, nil
}
