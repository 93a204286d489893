package config

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags first, then the rules that span fields.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	return validateCrossField(cfg)
}

// formatValidationErrors renders one line per failed field:
// "logging.level: failed 'oneof' (value: INVALID)".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s: failed '%s'", strings.ToLower(field), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msg += fmt.Sprintf(" (value: %v)", fe.Value())
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
}

func validateCrossField(cfg *Config) error {
	switch cfg.Store.Type {
	case StoreSQLite, StorePostgres:
		if err := cfg.Store.relational().Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	case StoreBadger:
		if cfg.Store.Badger.Path == "" && !cfg.Store.Badger.InMemory {
			return fmt.Errorf("store: badger requires path or in_memory")
		}
	}

	// The control directory is a single component below the root.
	ctl := path.Clean(cfg.Control.Path)
	if ctl == "/" || path.Dir(ctl) != "/" {
		return fmt.Errorf("control.path: must be a single component below /, got %q", cfg.Control.Path)
	}
	if len(path.Base(ctl)) > cfg.Limits.MaxNameLen {
		return fmt.Errorf("control.path: name exceeds limits.max_name_len")
	}

	if cfg.Limits.MaxFileSize > 0 && cfg.COW.MaxDiffFileSize > cfg.Limits.MaxFileSize {
		return fmt.Errorf("cow.max_diff_file_size (%s) exceeds limits.max_file_size (%s)",
			cfg.COW.MaxDiffFileSize, cfg.Limits.MaxFileSize)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint: required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry.profiling.endpoint: required when profiling is enabled")
	}

	return nil
}
