package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/layerfs/internal/bytesize"
)

// EnvPrefix prefixes every environment override, e.g. LAYERFS_LOGGING_LEVEL.
const EnvPrefix = "LAYERFS"

// Load reads configPath (or config.yaml in the default directory when empty),
// overlays LAYERFS_* environment variables, fills defaults and validates.
// Without a file it returns the defaults.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return GetDefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for commands that need an existing file. A missing file
// yields instructions for creating one.
func MustLoad(configPath string) (*Config, error) {
	switch {
	case configPath == "" && !DefaultConfigExists():
		return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
			"Create one with:\n  layerfs init\n\n"+
			"or point to another file:\n  layerfs <command> --config /path/to/config.yaml",
			GetDefaultConfigPath())
	case configPath == "":
		configPath = GetDefaultConfigPath()
	default:
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it with:\n  layerfs init --config %s", configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML. The file is private since it may carry
// database credentials.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return v
	}
	v.AddConfigPath(GetConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return v
}

var (
	byteSizeType = reflect.TypeOf(bytesize.ByteSize(0))
	durationType = reflect.TypeOf(time.Duration(0))
)

// decodeHooks lets files spell sizes as "64Mi" and durations as "30s".
// Plain numbers are bytes and nanoseconds.
func decodeHooks() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		switch to {
		case byteSizeType:
			if s, ok := data.(string); ok {
				return bytesize.ParseByteSize(s)
			}
			if n, ok := asInt64(data); ok {
				return bytesize.ByteSize(n), nil
			}
		case durationType:
			if s, ok := data.(string); ok {
				return time.ParseDuration(s)
			}
			if n, ok := asInt64(data); ok {
				return time.Duration(n), nil
			}
		}
		return data, nil
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// GetConfigDir is $XDG_CONFIG_HOME/layerfs, ~/.config/layerfs, or "." when
// no home directory is known.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "layerfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "layerfs")
}

// GetDefaultConfigPath is config.yaml inside GetConfigDir.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether GetDefaultConfigPath exists.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
