package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/layerfs/internal/bytesize"
	"github.com/marmos91/layerfs/pkg/cow"
	"github.com/marmos91/layerfs/pkg/filetype"
	"github.com/marmos91/layerfs/pkg/hooks"
	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/store/relational"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyLayersDefaults(&cfg.Layers)
	applyDetectionDefaults(&cfg.Detection)
	applyCOWDefaults(&cfg.COW)
	applyLimitsDefaults(&cfg.Limits)
	applyControlDefaults(&cfg.Control)
	applyTenantDefaults(&cfg.Tenant)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Standard OTLP gRPC port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:7070"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyStoreDefaults defaults to a SQLite file under the XDG data directory.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = StoreSQLite
	}

	switch cfg.Type {
	case StoreSQLite, StorePostgres:
		rc := cfg.relational()
		rc.ApplyDefaults()
		cfg.SQLite = rc.SQLite
		cfg.Postgres = rc.Postgres
	case StoreBadger:
		if cfg.Badger.Path == "" && !cfg.Badger.InMemory {
			cfg.Badger.Path = filepath.Join(dataDir(), "badger")
		}
	}
}

func applyLayersDefaults(cfg *LayersConfig) {
	if cfg.MaxChainDepth == 0 {
		cfg.MaxChainDepth = layer.DefaultMaxChainDepth
	}
	if cfg.ChainCacheSize == 0 {
		cfg.ChainCacheSize = layer.DefaultChainCacheSize
	}
	if cfg.RootName == "" {
		cfg.RootName = layer.DefaultRootName
	}
}

func applyDetectionDefaults(cfg *DetectionConfig) {
	if cfg.SampleWindow == 0 {
		cfg.SampleWindow = bytesize.ByteSize(filetype.DefaultSampleWindow)
	}
	if cfg.BinaryRatioThreshold == 0 {
		cfg.BinaryRatioThreshold = filetype.DefaultBinaryRatioThreshold
	}
}

func applyCOWDefaults(cfg *COWConfig) {
	if cfg.MaxDiffRatio == 0 {
		cfg.MaxDiffRatio = cow.DefaultMaxDiffRatio
	}
	// MaxDiffFileSize stays 0 (no limit)
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxPathLen == 0 {
		cfg.MaxPathLen = metadata.MaxPathLen
	}
	if cfg.MaxNameLen == 0 {
		cfg.MaxNameLen = metadata.MaxNameLen
	}
}

func applyControlDefaults(cfg *ControlConfig) {
	if cfg.Path == "" {
		cfg.Path = hooks.DefaultPath
	}
}

func applyTenantDefaults(cfg *TenantConfig) {
	if cfg.Default == "" {
		cfg.Default = "default"
	}
}

// dataDir returns $XDG_DATA_HOME/layerfs or ~/.local/share/layerfs.
func dataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "layerfs")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Type: StoreSQLite,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

// relational converts the sqlite or postgres section to the store's config.
func (c *StoreConfig) relational() *relational.Config {
	return &relational.Config{
		Type:     relational.DatabaseType(c.Type),
		SQLite:   c.SQLite,
		Postgres: c.Postgres,
	}
}
