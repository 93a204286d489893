// Package server is the HTTP side of 'layerfs serve': health probes, the
// Prometheus endpoint and read-only layer status.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/layerfs"
)

// Config configures the HTTP server.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ShutdownTimeout bounds graceful shutdown after the context is cancelled.
	ShutdownTimeout time.Duration
}

// Server serves the router built by NewRouter.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// New creates a stopped server over fs.
func New(cfg Config, fs *layerfs.FileSystem) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      NewRouter(fs),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start listens and blocks until ctx is cancelled or the server fails.
// Cancellation triggers a graceful shutdown; nil is returned when it completes.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP server shutdown signal received")
		// ctx is already cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			logger.Error("HTTP server shutdown error", logger.Err(err))
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return shutdownErr
}

// Addr returns the bound address once Start is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
