package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
)

// StreamHandler serves realtime event streams over SSE and websockets
type StreamHandler struct {
	rooms  *rooms.Service
	hubs   *realtime.HubManager
	cfg    realtime.StreamConfig
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(roomService *rooms.Service, hubs *realtime.HubManager, cfg realtime.StreamConfig, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		rooms:  roomService,
		hubs:   hubs,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "stream")),
	}
}

// RoomEvents handles GET /api/v1/rooms/{id}/events
func (h *StreamHandler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.roomMember(w, r)
	if !ok {
		return
	}
	realtime.ServeSSE(w, r, h.hubs.GetOrCreateHub(realtime.RoomTopic(roomID(r))), caller.ID, h.cfg, h.stillMember(roomID(r), caller))
}

// RoomSocket handles GET /api/v1/rooms/{id}/ws
func (h *StreamHandler) RoomSocket(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.roomMember(w, r)
	if !ok {
		return
	}
	realtime.ServeWS(w, r, h.hubs.GetOrCreateHub(realtime.RoomTopic(roomID(r))), caller.ID, h.cfg, h.stillMember(roomID(r), caller), h.logger)
}

// UserEvents handles GET /api/v1/identity/me/events
func (h *StreamHandler) UserEvents(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())
	realtime.ServeSSE(w, r, h.hubs.GetOrCreateHub(realtime.UserTopic(caller.ID)), caller.ID, h.cfg, nil)
}

// LobbyEvents handles GET /api/v1/lobby/events
func (h *StreamHandler) LobbyEvents(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())
	realtime.ServeSSE(w, r, h.hubs.GetOrCreateHub(realtime.LobbyTopic), caller.ID, h.cfg, nil)
}

// roomMember checks the caller may watch a room before any stream headers go out
func (h *StreamHandler) roomMember(w http.ResponseWriter, r *http.Request) (*model.Identity, bool) {
	caller := middleware.MustGetIdentity(r.Context())
	id := roomID(r)

	if _, err := h.rooms.GetRoom(r.Context(), id); err != nil {
		WriteError(w, err)
		return nil, false
	}
	if err := h.stillMember(id, caller)(r.Context()); err != nil {
		WriteError(w, err)
		return nil, false
	}
	return caller, true
}

// stillMember re-checks membership once the watcher is registered, so a removal
// that lands between the first check and registration still ends the stream.
func (h *StreamHandler) stillMember(id model.RoomID, caller *model.Identity) realtime.Admit {
	return func(ctx context.Context) error {
		if caller.IsStaff() {
			return nil
		}
		member, err := h.rooms.IsMember(ctx, id, caller.ID)
		if err != nil {
			return err
		}
		if !member {
			return model.ErrNotInRoom
		}
		return nil
	}
}
