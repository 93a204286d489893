// Package cmdutil provides shared utilities for layerfs commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/layerfs/internal/cli/output"
	"github.com/marmos91/layerfs/internal/cli/prompt"
	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/config"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metadata"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	Tenant     string
	Layer      string
	Output     string
	NoColor    bool
	Verbose    bool
}

// LoadConfig loads the configuration named by --config. Without a config
// file the defaults apply.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if Flags.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// Session is an open filesystem plus the caller identity of one command.
type Session struct {
	Config *config.Config
	FS     *layerfs.FileSystem
	Op     *layerfs.OpContext

	store metadata.Store
}

// Open loads the configuration, opens the store and bootstraps the tenant.
func Open(ctx context.Context) (*Session, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	fs, store, err := config.NewFileSystem(cfg)
	if err != nil {
		return nil, err
	}

	tenant := Flags.Tenant
	if tenant == "" {
		tenant = cfg.Tenant.Default
	}
	op := layerfs.NewOpContext(ctx, tenant)
	op.UID = uint32(os.Getuid())
	op.GID = uint32(os.Getgid())

	if _, err := fs.InitTenant(op); err != nil {
		_ = store.Close()
		return nil, err
	}
	// Pinning applies after bootstrap so a fresh tenant can still be created.
	op.Layer = Flags.Layer

	return &Session{Config: cfg, FS: fs, Op: op, store: store}, nil
}

// Close releases the store.
func (s *Session) Close() {
	if err := s.store.Close(); err != nil {
		logger.Warn("Failed to close store", logger.Err(err))
	}
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a stdout printer honoring --output and --no-color.
func Printer() (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	if Flags.NoColor {
		return output.NewPrinter(os.Stdout, format, false), nil
	}
	return output.StdoutPrinter(format), nil
}

// PrintOutput prints data in the selected format. For tables, emptyMsg is
// shown when isEmpty is set.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintResourceWithSuccess prints data as JSON/YAML, or successMsg for tables.
func PrintResourceWithSuccess(w io.Writer, data any, successMsg string) error {
	p, err := Printer()
	if err != nil {
		return err
	}

	switch p.Format() {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		p.Success(successMsg)
		return nil
	}
}

// RunDeleteWithConfirmation asks the user to type name (unless force is set)
// and runs deleteFn.
func RunDeleteWithConfirmation(resourceType, name string, force bool, deleteFn func() error) error {
	confirmed, err := prompt.ConfirmDangerWithForce(fmt.Sprintf("Delete %s '%s'?", resourceType, name), name, force)
	if err != nil {
		if prompt.IsAborted(err) {
			fmt.Println("\nAborted.")
			return nil
		}
		return err
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return nil
	}
	return deleteFn()
}
