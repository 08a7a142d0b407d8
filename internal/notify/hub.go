// Package notify pushes session transitions to connected chat clients over WebSocket.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/chatqueue/internal/domain"
)

const writeTimeout = 2 * time.Second

// Event types sent to clients.
const (
	EventSession = "session"
	EventExpired = "expired"
	EventPolled  = "polled"
	EventPong    = "pong"
	EventError   = "error"
)

// Event is the JSON frame sent to clients.
type Event struct {
	Type    string              `json:"type"`
	Session *domain.ChatSession `json:"session,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Hub tracks one WebSocket connection per chat session.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{active: make(map[string]*websocket.Conn)}
}

// Get returns the connection registered for sessionID.
func (h *Hub) Get(sessionID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active[sessionID]
}

// Register attaches conn to sessionID, closing any connection it replaces.
// The replaced connection is closed outside the lock: Close waits for the
// peer's close handshake.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	existing, ok := h.active[sessionID]
	h.active[sessionID] = conn
	h.mu.Unlock()
	slog.Debug("Chat client registered", "session_id", sessionID)

	if ok && existing != conn {
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "session replaced") }()
	}
}

// Unregister removes conn if it is still the registered connection for sessionID.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[sessionID]; ok && current == conn {
		delete(h.active, sessionID)
		slog.Debug("Chat client unregistered", "session_id", sessionID)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// SessionActivated pushes the updated session to its client, if connected.
func (h *Hub) SessionActivated(session domain.ChatSession) {
	conn := h.Get(session.ID)
	if conn == nil {
		return
	}
	go func() {
		if err := send(conn, Event{Type: EventSession, Session: &session}); err != nil {
			slog.Debug("Failed to push session update", "session_id", session.ID, "error", err)
		}
	}()
}

// SessionExpired tells the client its session is gone and closes the connection.
func (h *Hub) SessionExpired(sessionID string) {
	h.mu.Lock()
	conn, ok := h.active[sessionID]
	delete(h.active, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		if err := send(conn, Event{Type: EventExpired}); err != nil {
			slog.Debug("Failed to push expiry", "session_id", sessionID, "error", err)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "session expired")
	}()
}

// CloseAll closes every connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.active))
	for id, conn := range h.active {
		conns = append(conns, conn)
		delete(h.active, id)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		conn := conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
}

func send(conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
