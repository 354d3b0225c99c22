package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/request"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/events"
)

// SpawnHandler handles in-room event spawns
type SpawnHandler struct {
	events *events.Service
}

// NewSpawnHandler creates a new spawn handler
func NewSpawnHandler(eventsService *events.Service) *SpawnHandler {
	return &SpawnHandler{events: eventsService}
}

// List handles GET /api/v1/rooms/{id}/spawns
func (h *SpawnHandler) List(w http.ResponseWriter, r *http.Request) {
	spawns, err := h.events.ListSpawns(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	if spawns == nil {
		spawns = []*model.Spawn{}
	}

	response.JSON(w, http.StatusOK, response.Spawns{Spawns: spawns})
}

// Trigger handles POST /api/v1/rooms/{id}/spawns
func (h *SpawnHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.SpawnRequest
	if !decode(w, r, &req, false) {
		return
	}

	spawn, err := h.events.Trigger(r.Context(), roomID(r), caller, model.SpawnKind(req.Kind))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, spawn)
}

// Claim handles POST /api/v1/rooms/{id}/spawns/{spawn}/claim
func (h *SpawnHandler) Claim(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	spawn, err := h.events.ClaimPumpkin(r.Context(), roomID(r), model.SpawnID(mux.Vars(r)["spawn"]), caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, spawn)
}
