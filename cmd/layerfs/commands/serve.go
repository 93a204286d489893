package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/layerfs/cmd/layerfs/cmdutil"
	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/internal/server"
	"github.com/marmos91/layerfs/internal/telemetry"
	"github.com/marmos91/layerfs/pkg/config"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metrics"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and layer status over HTTP",
	Long: `Open the configured store and serve an HTTP endpoint until interrupted.

Endpoints:
  GET /healthz                  Liveness probe
  GET /healthz/ready            Store healthcheck
  GET /metrics                  Prometheus metrics (metrics.enabled)
  GET /tenants/{tenant}/layers  Layers of a tenant
  GET /tenants/{tenant}/chain   Active chain of a tenant

Examples:
  # Serve on the configured address
  layerfs serve

  # Override the address and raise the log level
  LAYERFS_LOGGING_LEVEL=DEBUG layerfs serve --address 0.0.0.0:7070`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (default: server.address from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "layerfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		// ctx is cancelled by now; flushing needs a live context.
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "layerfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	// The registry must exist before the filesystem asks for metric sinks.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	fs, store, err := config.NewFileSystem(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Store close error", logger.Err(err))
		}
	}()

	tenant := cmdutil.Flags.Tenant
	if tenant == "" {
		tenant = cfg.Tenant.Default
	}
	active, err := fs.InitTenant(layerfs.NewOpContext(ctx, tenant))
	if err != nil {
		return fmt.Errorf("failed to initialize tenant %q: %w", tenant, err)
	}

	logger.Info("layerfs starting",
		"version", Version,
		logger.StoreType(cfg.Store.Type),
		logger.Tenant(tenant),
		logger.Layer(active.Name),
		"metrics", metrics.IsEnabled(),
		"telemetry", telemetry.IsEnabled(),
		"profiling", telemetry.IsProfilingEnabled())

	srv := server.New(server.Config{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, fs)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("layerfs stopped")
	return nil
}
