package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/api/middleware"
	"github.com/chatrelay/chatrelay/internal/models"
)

// CreateChatRequest represents the chat creation request.
type CreateChatRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateChat handles creation of a new chat (authenticated).
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateChatRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	name := sanitizeName(req.Name)
	if name == "" {
		name = "New Chat"
	}
	if len(name) > 256 {
		name = name[:256]
	}

	chat, err := h.store.CreateChat(r.Context(), user.ID, name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	h.JSON(w, http.StatusCreated, chat)
}

// ListChats returns the caller's chats ordered by creation time.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chats, err := h.store.ListChats(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	h.JSON(w, http.StatusOK, chats)
}

// GetChat returns a single chat owned by the caller.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	chatID, err := uuid.Parse(chi.URLParam(r, "chatID"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return
	}

	chat, err := h.store.GetChat(r.Context(), chatID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if chat == nil {
		h.Error(w, http.StatusNotFound, "chat not found")
		return
	}

	h.JSON(w, http.StatusOK, chat)
}
