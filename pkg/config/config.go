package config

import (
	"time"

	"github.com/marmos91/layerfs/internal/bytesize"
	"github.com/marmos91/layerfs/pkg/metadata/store/badger"
	"github.com/marmos91/layerfs/pkg/metadata/store/relational"
)

// Config represents the layerfs configuration.
//
// It captures the static configuration of a layerfs process:
//   - Logging, tracing and profiling
//   - The metrics endpoint and the serve command's HTTP server
//   - The record store backing every tenant
//   - Layer, detection, copy-on-write and path limits
//   - The control directory and the default tenant
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (LAYERFS_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server configures the HTTP server started by 'layerfs serve'
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store selects and configures the record store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Layers bounds layer chains
	Layers LayersConfig `mapstructure:"layers" yaml:"layers"`

	// Detection tunes text/binary classification
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`

	// COW tunes the copy-on-write strategies
	COW COWConfig `mapstructure:"cow" yaml:"cow"`

	// Limits bounds paths and file sizes
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// Control configures the control directory
	Control ControlConfig `mapstructure:"control" yaml:"control"`

	// Tenant selects the tenant used by the CLI
	Tenant TenantConfig `mapstructure:"tenant" yaml:"tenant"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served on /metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ServerConfig configures the HTTP server of 'layerfs serve', which exposes
// /healthz and, when metrics are enabled, /metrics.
type ServerConfig struct {
	// Address is the listen address (host:port)
	// Default: "127.0.0.1:7070"
	Address string `mapstructure:"address" validate:"required,hostname_port" yaml:"address"`

	// ReadTimeout bounds reading a request
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`

	// WriteTimeout bounds writing a response
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive connections
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`
}

// Store types.
const (
	StoreMemory   = "memory"
	StoreBadger   = "badger"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// StoreConfig selects the record store. Only the section matching Type is
// used.
type StoreConfig struct {
	// Type is one of memory, badger, sqlite, postgres
	// Default: sqlite
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sqlite postgres" yaml:"type"`

	Badger   badger.Config             `mapstructure:"badger" yaml:"badger"`
	SQLite   relational.SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres relational.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// LayersConfig bounds layer chains.
type LayersConfig struct {
	// MaxChainDepth is the longest chain a layer may have, itself included
	// Default: 64
	MaxChainDepth int `mapstructure:"max_chain_depth" validate:"gte=1,lte=4096" yaml:"max_chain_depth"`

	// ChainCacheSize is the number of resolved chains kept in memory
	// Default: 1024
	ChainCacheSize int `mapstructure:"chain_cache_size" validate:"gte=1" yaml:"chain_cache_size"`

	// RootName is the name given to a tenant's root layer
	// Default: "base"
	RootName string `mapstructure:"root_name" validate:"required" yaml:"root_name"`
}

// DetectionConfig tunes text/binary classification.
type DetectionConfig struct {
	// SampleWindow is how much of a file is inspected
	// Default: 8KiB
	SampleWindow bytesize.ByteSize `mapstructure:"sample_window" yaml:"sample_window"`

	// BinaryRatioThreshold is the share of non-printable bytes above which
	// content is binary
	// Default: 0.30
	BinaryRatioThreshold float64 `mapstructure:"binary_ratio_threshold" validate:"gt=0,lte=1" yaml:"binary_ratio_threshold"`
}

// COWConfig tunes the copy-on-write strategies.
type COWConfig struct {
	// DisableDiff stores every inherited file as a full copy
	DisableDiff bool `mapstructure:"disable_diff" yaml:"disable_diff"`

	// MaxDiffRatio bounds inserted bytes relative to the new file size
	// Default: 0.75
	MaxDiffRatio float64 `mapstructure:"max_diff_ratio" validate:"gt=0,lte=1" yaml:"max_diff_ratio"`

	// MaxDiffFileSize disables diffing for larger files (0 = no limit)
	MaxDiffFileSize bytesize.ByteSize `mapstructure:"max_diff_file_size" yaml:"max_diff_file_size"`
}

// LimitsConfig bounds paths and file sizes.
type LimitsConfig struct {
	// MaxFileSize rejects larger files (0 = no limit)
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`

	// MaxPathLen is the longest accepted path
	// Default: 4096
	MaxPathLen int `mapstructure:"max_path_len" validate:"gte=1" yaml:"max_path_len"`

	// MaxNameLen is the longest accepted path component
	// Default: 255
	MaxNameLen int `mapstructure:"max_name_len" validate:"gte=1,ltefield=MaxPathLen" yaml:"max_name_len"`

	// Capacity is the size reported by statfs (0 = unbounded)
	Capacity bytesize.ByteSize `mapstructure:"capacity" yaml:"capacity"`
}

// ControlConfig configures the control directory.
type ControlConfig struct {
	// Path is the control directory, a single component below the root
	// Default: "/.layers"
	Path string `mapstructure:"path" validate:"required,startswith=/" yaml:"path"`
}

// TenantConfig selects the tenant used by the CLI.
type TenantConfig struct {
	// Default is the tenant used when --tenant is not given
	// Default: "default"
	Default string `mapstructure:"default" validate:"required" yaml:"default"`
}
