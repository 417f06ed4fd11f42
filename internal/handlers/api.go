package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/orbital/internal/common"
	"github.com/ternarybob/orbital/internal/orders"
	"github.com/ternarybob/orbital/internal/pool"
)

// APIHandler serves the system endpoints: health, version, status.
type APIHandler struct {
	service *orders.Service
	pool    *pool.WorkerPool
	logger  arbor.ILogger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(service *orders.Service, workerPool *pool.WorkerPool, logger arbor.ILogger) *APIHandler {
	return &APIHandler{service: service, pool: workerPool, logger: logger}
}

// HealthHandler handles GET /api/health.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

// StatusHandler handles GET /api/status with queue and pool gauges.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	states := h.pool.States()
	byState := map[string]int{}
	for _, state := range states {
		byState[string(state)]++
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": h.service.QueueSize(),
		"tasks":  byState,
	})
}

// NotFoundHandler answers unmatched API routes.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "not found")
}
