package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/chatqueue/internal/chat"
	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/identity"
)

const maxStartBody = 4 << 10

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a chat handler.
func NewChatHandler(base *Handler) *ChatHandler {
	return &ChatHandler{Handler: base}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/start", h.StartChat)
		r.Post("/poll/{sessionId}", h.Poll)
		r.Get("/status", h.Status)
		r.Get("/session/{sessionId}", h.GetSession)
	})
}

type startChatRequest struct {
	UserID string `json:"userId"`
}

// StartChat admits a chat request. The user id comes from the body, or from
// the anonymous identity cookie when the body omits it.
func (h *ChatHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxStartBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = identity.UserIDFromContext(r.Context())
	}
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	result, err := h.chat.StartChat(r.Context(), userID)
	switch {
	case errors.Is(err, chat.ErrQueueFull):
		JSON(w, http.StatusBadRequest, result)
	case err != nil:
		slog.Error("Failed to start chat", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to start chat")
	default:
		JSON(w, http.StatusOK, result)
	}
}

// Poll refreshes a session's liveness.
func (h *ChatHandler) Poll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	err := h.chat.Poll(r.Context(), sessionID)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		Error(w, http.StatusNotFound, chat.SessionNotFoundMessage)
	case err != nil:
		slog.Error("Failed to poll session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to poll session")
	default:
		JSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// Status reports queue load and capacity.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.chat.QueueStatus(r.Context())
	if err != nil {
		slog.Error("Failed to read queue status", "error", err)
		Error(w, http.StatusInternalServerError, "failed to read queue status")
		return
	}
	JSON(w, http.StatusOK, status)
}

type sessionResponse struct {
	Found   bool                `json:"found"`
	Session *domain.ChatSession `json:"session,omitempty"`
}

// GetSession returns a session by id.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	session, err := h.chat.GetSession(r.Context(), sessionID)
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		JSON(w, http.StatusNotFound, sessionResponse{Found: false})
	case err != nil:
		slog.Error("Failed to get session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to get session")
	default:
		JSON(w, http.StatusOK, sessionResponse{Found: true, Session: &session})
	}
}
