package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/api/middleware"
	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/metrics"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/relay"
)

// SubmitMessageRequest is the body of a message submission.
type SubmitMessageRequest struct {
	Msg string `json:"msg"`
}

// SaveAssistantRequest is the body of the finalized-assistant-message save.
type SaveAssistantRequest struct {
	Content string `json:"content"`
}

// GetMessages returns the ordered message history of a chat.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
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

	msgs, err := h.store.ListMessages(r.Context(), chatID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, msgs)
}

// StreamMessage accepts a user message and relays the assistant's response
// as a live chunked stream. The user message is persisted synchronously
// before the provider is invoked; the assistant message is NOT persisted
// here - the client pushes the accumulated text to SaveAssistantMessage once
// the stream completes.
func (h *Handler) StreamMessage(w http.ResponseWriter, r *http.Request) {
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

	var req SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Msg) == "" {
		h.Error(w, http.StatusBadRequest, "no message provided")
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

	// One in-flight stream per chat. A concurrent submission from another
	// tab or session is rejected instead of racing this one.
	acquired, err := h.locks.AcquireStreamLock(r.Context(), chatID, h.cfg.StreamLockTTL)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "lock error")
		return
	}
	if !acquired {
		metrics.StreamLockConflicts.Inc()
		h.Error(w, http.StatusConflict, "a response is already streaming for this chat")
		return
	}
	defer func() {
		// Release with a fresh context: the request context is gone if the
		// client disconnected mid-stream.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.locks.ReleaseStreamLock(ctx, chatID); err != nil {
			h.logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("failed to release stream lock")
		}
	}()

	if _, err := h.store.CreateMessage(r.Context(), chatID, models.RoleUser, req.Msg); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesStored.WithLabelValues(string(models.RoleUser)).Inc()

	msgs, err := h.store.ListMessages(r.Context(), chatID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if len(msgs) == 0 {
		// Impossible after the insert above, but checked.
		h.Error(w, http.StatusInternalServerError, "no messages found")
		return
	}

	history, err := llm.BuildHistory(msgs)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("history mapping failed")
		h.Error(w, http.StatusInternalServerError, "invalid message history")
		return
	}

	// Bound the whole provider exchange; an unresponsive provider must not
	// hold the relay open indefinitely.
	streamCtx, cancel := context.WithTimeout(r.Context(), h.cfg.ProviderTimeout)
	defer cancel()

	openStart := time.Now()
	stream, err := h.provider.StreamCompletion(streamCtx, history)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("failed to open completion stream")
		h.Error(w, http.StatusInternalServerError, "failed to create stream")
		return
	}
	defer stream.Close()
	metrics.ProviderOpenLatency.Observe(time.Since(openStart).Seconds())
	metrics.StreamsStarted.Inc()

	sw := relay.NewWriter(w)
	if err := relay.Copy(sw, stream); err != nil {
		metrics.StreamsCompleted.WithLabelValues("provider_error").Inc()
		h.logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("stream relay failed")
		return
	}
	metrics.StreamsCompleted.WithLabelValues("completed").Inc()
}

// SaveAssistantMessage persists the finalized assistant message pushed back
// by the client after it has accumulated the full streamed text.
func (h *Handler) SaveAssistantMessage(w http.ResponseWriter, r *http.Request) {
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

	var req SaveAssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "no content provided")
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

	msg, err := h.store.CreateMessage(r.Context(), chatID, models.RoleAssistant, req.Content)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesStored.WithLabelValues(string(models.RoleAssistant)).Inc()

	h.JSON(w, http.StatusCreated, msg)
}
