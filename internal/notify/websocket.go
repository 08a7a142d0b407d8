package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/chatqueue/internal/domain"
)

// SessionService is the chat service surface the WebSocket handler needs.
type SessionService interface {
	Poll(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, sessionID string) (domain.ChatSession, error)
}

type clientMessage struct {
	Type string `json:"type"`
}

// Handler upgrades GET /ws/chat/{sessionId} and keeps the client informed.
// Clients may send {"type":"poll"} frames in place of HTTP polls.
type Handler struct {
	hub            *Hub
	chat           SessionService
	originPatterns []string
}

// NewHandler creates a WebSocket handler. originPatterns follow
// websocket.AcceptOptions; nil allows same-origin requests only.
func NewHandler(hub *Hub, chat SessionService, originPatterns []string) *Handler {
	return &Handler{hub: hub, chat: chat, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	session, err := h.chat.GetSession(r.Context(), sessionID)
	if err != nil || !session.IsLive() {
		http.Error(w, "session not found or inactive", http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.hub.Register(sessionID, ws)
	defer h.hub.Unregister(sessionID, ws)

	ctx := r.Context()
	if err := wsjson.Write(ctx, ws, Event{Type: EventSession, Session: &session}); err != nil {
		slog.Debug("Failed to send session snapshot", "error", err, "session_id", sessionID)
		return
	}
	h.readLoop(ctx, ws, sessionID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Chat client disconnected", "session_id", sessionID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		switch msg.Type {
		case "poll":
			if err := h.chat.Poll(ctx, sessionID); err != nil {
				_ = wsjson.Write(ctx, ws, Event{Type: EventError, Error: err.Error()})
				return
			}
			if err := wsjson.Write(ctx, ws, Event{Type: EventPolled}); err != nil {
				return
			}
		case "ping":
			if err := wsjson.Write(ctx, ws, Event{Type: EventPong}); err != nil {
				return
			}
		default:
			slog.Debug("Unknown client message", "type", msg.Type, "session_id", sessionID)
		}
	}
}
