// Package api provides HTTP handlers for the chat queue.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/chatqueue/internal/chat"
	"github.com/ashureev/chatqueue/internal/domain"
)

// ChatService is the chat core exposed over HTTP.
type ChatService interface {
	StartChat(ctx context.Context, userID string) (chat.StartChatResult, error)
	Poll(ctx context.Context, sessionID string) error
	QueueStatus(ctx context.Context) (chat.QueueStatus, error)
	GetSession(ctx context.Context, sessionID string) (domain.ChatSession, error)
}

// Handler provides common handler utilities.
type Handler struct {
	chat ChatService
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(chat ChatService) *Handler {
	return &Handler{chat: chat}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
