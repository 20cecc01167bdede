package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	sessions store.SessionStore
	locks    store.LockStore
	provider llm.Provider
	logger   zerolog.Logger
	cfg      *config.Config

	// pinger reports redis health; nil when redis is not configured.
	pinger Pinger
}

// Pinger is the health-check view of a store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new Handler with the given collaborators.
func NewHandler(data store.DataStore, redis *store.RedisStore, provider llm.Provider, logger zerolog.Logger, cfg *config.Config) *Handler {
	h := &Handler{
		store:    data,
		provider: provider,
		logger:   logger,
		cfg:      cfg,
	}
	if redis != nil {
		h.sessions = redis
		h.locks = redis
		h.pinger = redis
	}
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if len(email) == 0 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
