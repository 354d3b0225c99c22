package handler

import (
	"net/http"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/middleware"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/request"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/api/response"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/services/chat"
)

// MessageHandler handles room history and posting
type MessageHandler struct {
	chat *chat.Service
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(chatService *chat.Service) *MessageHandler {
	return &MessageHandler{chat: chatService}
}

// List handles GET /api/v1/rooms/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	messages, err := h.chat.History(r.Context(), roomID(r), caller)
	if err != nil {
		WriteError(w, err)
		return
	}
	if messages == nil {
		messages = []model.MessageView{}
	}

	response.JSON(w, http.StatusOK, response.Messages{Messages: messages})
}

// Send handles POST /api/v1/rooms/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.SendMessageRequest
	if !decode(w, r, &req, false) {
		return
	}

	msg, err := h.chat.Send(r.Context(), roomID(r), caller, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, msg)
}

// Announce handles POST /api/v1/rooms/{id}/announcements
func (h *MessageHandler) Announce(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetIdentity(r.Context())

	var req request.SendMessageRequest
	if !decode(w, r, &req, false) {
		return
	}

	msg, err := h.chat.Announce(r.Context(), roomID(r), caller, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, msg)
}
