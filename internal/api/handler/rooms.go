package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/request"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/rooms"
)

// RoomHandler handles the room directory, membership and host endpoints
type RoomHandler struct {
	rooms *rooms.Service
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomService *rooms.Service) *RoomHandler {
	return &RoomHandler{rooms: roomService}
}

func roomID(r *http.Request) model.RoomID {
	return model.RoomID(mux.Vars(r)["id"])
}

// List handles GET /api/v1/rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if summaries == nil {
		summaries = []rooms.Summary{}
	}
	response.JSON(w, http.StatusOK, response.Rooms{Rooms: summaries})
}

// Create handles POST /api/v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.CreateRoomRequest
	if !decode(w, r, &req, false) {
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), caller, rooms.CreateSettings{
		Name:        req.Name,
		Description: req.Description,
		Background:  req.Background,
		Capacity:    req.Capacity,
		Password:    req.Password,
		InviteOnly:  req.InviteOnly,
		Permanent:   req.Permanent,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusCreated, room)
}

// Get handles GET /api/v1/rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

// Update handles PATCH /api/v1/rooms/{id}
func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.UpdateRoomRequest
	if !decode(w, r, &req, false) {
		return
	}

	room, err := h.rooms.UpdateSettings(r.Context(), roomID(r), caller, rooms.SettingsUpdate{
		Name:        req.Name,
		Description: req.Description,
		Background:  req.Background,
		Capacity:    req.Capacity,
		Password:    req.Password,
		InviteOnly:  req.InviteOnly,
		Permanent:   req.Permanent,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

// Delete handles DELETE /api/v1/rooms/{id}
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.rooms.DeleteRoom(r.Context(), roomID(r), caller); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Join handles POST /api/v1/rooms/{id}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	// An empty body is a join without credentials
	var req request.JoinRoomRequest
	if !decode(w, r, &req, true) {
		return
	}

	room, err := h.rooms.Join(r.Context(), roomID(r), caller, rooms.JoinOptions{Password: req.Password})
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

// Leave handles POST /api/v1/rooms/{id}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.rooms.Leave(r.Context(), roomID(r), caller.ID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Heartbeat handles POST /api/v1/rooms/{id}/heartbeat
func (h *RoomHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.rooms.Heartbeat(r.Context(), roomID(r), caller.ID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Members handles GET /api/v1/rooms/{id}/members
func (h *RoomHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.rooms.Members(r.Context(), roomID(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	if members == nil {
		members = []rooms.MemberView{}
	}

	response.JSON(w, http.StatusOK, response.Members{Members: members})
}

// UpdateStyle handles PATCH /api/v1/rooms/{id}/members/me/style
func (h *RoomHandler) UpdateStyle(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.MemberStyleRequest
	if !decode(w, r, &req, false) {
		return
	}

	update := rooms.StyleUpdate{
		AvatarHue:        req.AvatarHue,
		AvatarSaturation: req.AvatarSaturation,
		Reset:            req.Reset,
	}
	if req.Color != nil {
		c := model.Color(*req.Color)
		update.Color = &c
	}

	room, err := h.rooms.UpdateMemberStyle(r.Context(), roomID(r), caller.ID, update)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

// GrantHost handles POST /api/v1/rooms/{id}/host/grant
func (h *RoomHandler) GrantHost(w http.ResponseWriter, r *http.Request) {
	h.hostChange(w, r, h.rooms.GrantHost)
}

// RevokeHost handles POST /api/v1/rooms/{id}/host/revoke
func (h *RoomHandler) RevokeHost(w http.ResponseWriter, r *http.Request) {
	h.hostChange(w, r, h.rooms.RevokeHost)
}

// PassHost handles POST /api/v1/rooms/{id}/host/pass
func (h *RoomHandler) PassHost(w http.ResponseWriter, r *http.Request) {
	h.hostChange(w, r, h.rooms.PassHost)
}

// ClaimHost handles POST /api/v1/rooms/{id}/host/claim
func (h *RoomHandler) ClaimHost(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	room, err := h.rooms.ClaimHost(r.Context(), roomID(r), caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

type hostFunc func(ctx context.Context, roomID model.RoomID, actor *model.Identity, target model.IdentityID) (*model.Room, error)

func (h *RoomHandler) hostChange(w http.ResponseWriter, r *http.Request, change hostFunc) {
	caller := middleware.MustGetIdentity(r.Context())

	target, ok := decodeTarget(w, r)
	if !ok {
		return
	}

	room, err := change(r.Context(), roomID(r), caller, target)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeRoom(w, r, http.StatusOK, room)
}

// Kick handles POST /api/v1/rooms/{id}/kick
func (h *RoomHandler) Kick(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	target, ok := decodeTarget(w, r)
	if !ok {
		return
	}

	if err := h.rooms.Kick(r.Context(), roomID(r), caller, target); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// writeRoom responds with the room summary and its current members
func (h *RoomHandler) writeRoom(w http.ResponseWriter, r *http.Request, status int, room *model.Room) {
	out := response.RoomFromModel(room)
	members, err := h.rooms.Members(r.Context(), room.ID)
	if err == nil {
		out.Members = members
	}
	response.JSON(w, status, out)
}

func decodeTarget(w http.ResponseWriter, r *http.Request) (model.IdentityID, bool) {
	var req request.TargetRequest
	if !decode(w, r, &req, false) {
		return "", false
	}
	if req.IdentityID == "" {
		WriteError(w, NewInvalidRequestError("identity_id is required"))
		return "", false
	}
	return model.IdentityID(req.IdentityID), true
}

// parseDuration reads an optional Go duration; empty means no expiry
func parseDuration(w http.ResponseWriter, value string) (time.Duration, bool) {
	if value == "" {
		return 0, true
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		WriteError(w, NewInvalidRequestError("duration must be a positive duration such as 10m"))
		return 0, false
	}
	return d, true
}
