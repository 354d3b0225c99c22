package handler

import (
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/request"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/events"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/identity"
)

// IdentityHandler handles sessions, profiles and per-identity inboxes
type IdentityHandler struct {
	identity *identity.Service
	chat     *chat.Service
	events   *events.Service
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(identityService *identity.Service, chatService *chat.Service, eventsService *events.Service) *IdentityHandler {
	return &IdentityHandler{
		identity: identityService,
		chat:     chatService,
		events:   eventsService,
	}
}

// CreateGuest handles POST /api/v1/identity/guest
func (h *IdentityHandler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	var req request.CreateGuestRequest
	if !decode(w, r, &req, false) {
		return
	}

	if req.DisplayName == "" {
		WriteError(w, NewInvalidRequestError("display_name is required"))
		return
	}

	session, user, err := h.identity.CreateGuest(r.Context(), r.RemoteAddr, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	setSessionCookie(w, session)
	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session, user))
}

// Register handles POST /api/v1/identity/register
func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if !decode(w, r, &req, false) {
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	session, user, err := h.identity.Register(r.Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	setSessionCookie(w, session)
	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session, user))
}

// Login handles POST /api/v1/identity/login
func (h *IdentityHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if !decode(w, r, &req, false) {
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, user, err := h.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	setSessionCookie(w, session)
	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session, user))
}

// Logout handles POST /api/v1/identity/logout
func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.Logout(r.Context(), middleware.GetToken(r.Context())); err != nil {
		WriteError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	response.NoContent(w)
}

// GetMe handles GET /api/v1/identity/me
func (h *IdentityHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())
	response.JSON(w, http.StatusOK, response.IdentityFromModel(caller))
}

// UpdateMe handles PATCH /api/v1/identity/me
func (h *IdentityHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.UpdateProfileRequest
	if !decode(w, r, &req, false) {
		return
	}

	update := identity.ProfileUpdate{
		DisplayName:      req.DisplayName,
		AvatarHue:        req.AvatarHue,
		AvatarSaturation: req.AvatarSaturation,
	}
	if req.Color != nil {
		c := model.Color(*req.Color)
		update.Color = &c
	}

	user, err := h.identity.UpdateProfile(r.Context(), caller.ID, update)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.IdentityFromUser(user))
}

// ListOnline handles GET /api/v1/users/online
func (h *IdentityHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	users, err := h.identity.ListOnline(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	out := response.Users{Users: make([]response.Identity, len(users))}
	for i, u := range users {
		out.Users[i] = response.IdentityFromUser(u)
	}
	response.JSON(w, http.StatusOK, out)
}

// Balance handles GET /api/v1/identity/me/balance
func (h *IdentityHandler) Balance(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	balance, err := h.events.Balance(r.Context(), caller.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Balance{IdentityID: string(caller.ID), Balance: balance})
}

// Mentions handles GET /api/v1/identity/me/mentions
func (h *IdentityHandler) Mentions(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	mentions, err := h.chat.Mentions(r.Context(), caller.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	out := response.Mentions{Mentions: mentions}
	for _, m := range mentions {
		if !m.Read {
			out.Unread++
		}
	}
	if out.Mentions == nil {
		out.Mentions = []*model.Mention{}
	}
	response.JSON(w, http.StatusOK, out)
}

// MarkMentionsRead handles POST /api/v1/identity/me/mentions/read
func (h *IdentityHandler) MarkMentionsRead(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	n, err := h.chat.MarkMentionsRead(r.Context(), caller.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MarkedRead{Marked: n})
}

func setSessionCookie(w http.ResponseWriter, session *identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
