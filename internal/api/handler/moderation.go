package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/request"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/moderation"
)

// ModerationHandler handles bans, mutes and knocks
type ModerationHandler struct {
	moderation *moderation.Service
}

// NewModerationHandler creates a new moderation handler
func NewModerationHandler(moderationService *moderation.Service) *ModerationHandler {
	return &ModerationHandler{moderation: moderationService}
}

func identityParam(r *http.Request) model.IdentityID {
	return model.IdentityID(mux.Vars(r)["identity"])
}

// ListBans handles GET /api/v1/rooms/{id}/bans
func (h *ModerationHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	bans, err := h.moderation.ListBans(r.Context(), roomID(r), caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, banList(bans))
}

// Ban handles POST /api/v1/rooms/{id}/bans
func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	req, ok := decodeBan(w, r)
	if !ok {
		return
	}
	duration, ok := parseDuration(w, req.Duration)
	if !ok {
		return
	}

	ban, err := h.moderation.Ban(r.Context(), roomID(r), caller, model.IdentityID(req.IdentityID), duration, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ban)
}

// Unban handles DELETE /api/v1/rooms/{id}/bans/{identity}
func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.moderation.Unban(r.Context(), roomID(r), caller, identityParam(r)); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Mute handles POST /api/v1/rooms/{id}/mutes
func (h *ModerationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.MuteRequest
	if !decode(w, r, &req, false) {
		return
	}
	if req.IdentityID == "" {
		WriteError(w, NewInvalidRequestError("identity_id is required"))
		return
	}
	duration, ok := parseDuration(w, req.Duration)
	if !ok {
		return
	}

	if err := h.moderation.Mute(r.Context(), roomID(r), caller, model.IdentityID(req.IdentityID), duration); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Unmute handles DELETE /api/v1/rooms/{id}/mutes/{identity}
func (h *ModerationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.moderation.Unmute(r.Context(), roomID(r), caller, identityParam(r)); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// Knock handles POST /api/v1/rooms/{id}/knocks
func (h *ModerationHandler) Knock(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.KnockRequest
	if !decode(w, r, &req, true) {
		return
	}

	knock, err := h.moderation.Knock(r.Context(), roomID(r), caller, req.Message)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, knock)
}

// PendingKnocks handles GET /api/v1/rooms/{id}/knocks
func (h *ModerationHandler) PendingKnocks(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	knocks, err := h.moderation.PendingKnocks(r.Context(), roomID(r), caller)
	if err != nil {
		WriteError(w, err)
		return
	}
	if knocks == nil {
		knocks = []*model.Knock{}
	}

	response.JSON(w, http.StatusOK, response.Knocks{Knocks: knocks})
}

// ResolveKnock handles POST /api/v1/knocks/{id}/resolve
func (h *ModerationHandler) ResolveKnock(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.ResolveKnockRequest
	if !decode(w, r, &req, false) {
		return
	}

	knock, err := h.moderation.ResolveKnock(r.Context(), model.KnockID(mux.Vars(r)["id"]), caller, req.Accept)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, knock)
}

// ListSiteBans handles GET /api/v1/admin/bans
func (h *ModerationHandler) ListSiteBans(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	bans, err := h.moderation.ListSiteBans(r.Context(), caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, banList(bans))
}

// SiteBan handles POST /api/v1/admin/bans
func (h *ModerationHandler) SiteBan(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	req, ok := decodeBan(w, r)
	if !ok {
		return
	}
	duration, ok := parseDuration(w, req.Duration)
	if !ok {
		return
	}

	ban, err := h.moderation.SiteBan(r.Context(), caller, model.IdentityID(req.IdentityID), duration, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ban)
}

// SiteUnban handles DELETE /api/v1/admin/bans/{identity}
func (h *ModerationHandler) SiteUnban(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	if err := h.moderation.SiteUnban(r.Context(), caller, identityParam(r)); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

func decodeBan(w http.ResponseWriter, r *http.Request) (request.BanRequest, bool) {
	var req request.BanRequest
	if !decode(w, r, &req, false) {
		return req, false
	}
	if req.IdentityID == "" {
		WriteError(w, NewInvalidRequestError("identity_id is required"))
		return req, false
	}
	return req, true
}

func banList(bans []*model.Ban) response.Bans {
	if bans == nil {
		bans = []*model.Ban{}
	}
	return response.Bans{Bans: bans}
}
