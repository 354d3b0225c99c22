package handler

import (
	"context"
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/maintenance"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler handles staff operations and health
type AdminHandler struct {
	scheduler *maintenance.Scheduler
	storage   Pinger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(scheduler *maintenance.Scheduler, storage Pinger) *AdminHandler {
	return &AdminHandler{scheduler: scheduler, storage: storage}
}

// RunMaintenance handles POST /api/v1/admin/maintenance
func (h *AdminHandler) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	results := h.scheduler.RunOnce(r.Context())
	if results == nil {
		results = []maintenance.Result{}
	}
	response.JSON(w, http.StatusOK, response.MaintenanceResponse{Results: results})
}

// Health handles GET /api/v1/health
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Storage: "unavailable"})
		return
	}
	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Storage: "ok"})
}
