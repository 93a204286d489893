package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metrics"
)

// NewRouter builds the chi router.
//
// Routes:
//   - GET /healthz - Liveness probe
//   - GET /healthz/ready - Store healthcheck
//   - GET /metrics - Prometheus metrics (only when metrics are enabled)
//   - GET /tenants/{tenant}/layers - Layers of a tenant
//   - GET /tenants/{tenant}/chain - Active chain of a tenant
func NewRouter(fs *layerfs.FileSystem) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := NewHealthHandler(fs.Store())
	r.Route("/healthz", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	if reg := metrics.GetRegistry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	layers := NewLayerHandler(fs)
	r.Route("/tenants/{tenant}", func(r chi.Router) {
		r.Get("/layers", layers.List)
		r.Get("/chain", layers.Chain)
	})

	return r
}

func isHealthPath(path string) bool {
	return strings.HasPrefix(path, "/healthz") || path == "/metrics"
}

// requestLogger logs each request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		// Probes and scrapes are frequent.
		if isHealthPath(r.URL.Path) {
			logger.Debug("HTTP request completed", logArgs...)
		} else {
			logger.Info("HTTP request completed", logArgs...)
		}
	})
}
