package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/hooks"
	"github.com/marmos91/layerfs/pkg/layerfs"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// HealthCheckTimeout bounds the store healthcheck of a readiness probe.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler serves the probes.
type HealthHandler struct {
	store     metadata.Store
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler for store.
func NewHealthHandler(store metadata.Store) *HealthHandler {
	return &HealthHandler{store: store, startTime: time.Now()}
}

// Liveness handles GET /healthz.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"service":    "layerfs",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
	})
}

// Readiness handles GET /healthz/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := h.store.Healthcheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"latency": time.Since(start).String(),
	})
}

// LayerHandler serves read-only layer status.
type LayerHandler struct {
	fs *layerfs.FileSystem
}

// NewLayerHandler creates a LayerHandler over fs.
func NewLayerHandler(fs *layerfs.FileSystem) *LayerHandler {
	return &LayerHandler{fs: fs}
}

// List handles GET /tenants/{tenant}/layers. ?deleted=true includes deleted
// layers.
func (h *LayerHandler) List(w http.ResponseWriter, r *http.Request) {
	op := layerfs.NewOpContext(r.Context(), chi.URLParam(r, "tenant"))
	layers, err := h.fs.ListLayers(op, r.URL.Query().Get("deleted") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks.NewLayerTable(layers))
}

// Chain handles GET /tenants/{tenant}/chain.
func (h *LayerHandler) Chain(w http.ResponseWriter, r *http.Request) {
	op := layerfs.NewOpContext(r.Context(), chi.URLParam(r, "tenant"))
	chain, err := h.fs.Chain(op)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks.NewLayerTable(chain))
}

// statusOf maps a store error code to an HTTP status.
func statusOf(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrLayerNotFound, errors.ErrPathNotFound:
		return http.StatusNotFound
	case errors.ErrAccessDenied:
		return http.StatusForbidden
	case errors.ErrInvalidPath, errors.ErrPathTooLong, errors.ErrFilenameTooLong:
		return http.StatusBadRequest
	case errors.ErrLayerChanged:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("HTTP handler failed", logger.Err(err))
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  errors.CodeOf(err).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
