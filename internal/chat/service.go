// Package chat implements the user-facing chat operations: admission,
// polling, queue status, and session lookup.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/chatqueue/internal/shift"
	"github.com/ashureev/chatqueue/internal/store"
)

// User-facing messages.
const (
	QueueFullMessage       = "Chat queue is full. Please try again later."
	SessionNotFoundMessage = "Session not found or inactive"
)

var (
	// ErrQueueFull is returned by StartChat when admission is refused.
	ErrQueueFull = errors.New("chat queue is full")

	// ErrSessionNotFound is returned when a session id is unknown or inactive.
	ErrSessionNotFound = errors.New("session not found or inactive")
)

// CapacityPolicy is the part of the shift policy the chat service reads.
type CapacityPolicy interface {
	Now() time.Time
	MaxMainQueueSize() int
	IsOfficeHours(t time.Time) bool
	OverflowBuffer() int
	Capacity(ctx context.Context) (shift.Capacity, error)
}

// Service handles chat requests from users.
type Service struct {
	sessions store.SessionStore
	policy   CapacityPolicy
	newID    func() string
}

// NewService creates a chat service.
func NewService(sessions store.SessionStore, policy CapacityPolicy) *Service {
	return &Service{
		sessions: sessions,
		policy:   policy,
		newID:    newSessionID,
	}
}

// QueueStatus is a point-in-time view of queue load and capacity.
type QueueStatus struct {
	CurrentQueueSize int  `json:"currentQueueSize"`
	MaxQueueSize     int  `json:"maxQueueSize"`
	TotalCapacity    int  `json:"totalCapacity"`
	IsOfficeHours    bool `json:"isOfficeHours"`
	OverflowActive   bool `json:"overflowActive"`
}

// QueueStatus reports current load. MaxQueueSize includes the overflow
// buffer while overflow is active.
func (s *Service) QueueStatus(ctx context.Context) (QueueStatus, error) {
	count, err := s.sessions.QueueCount(ctx)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("count queue: %w", err)
	}
	c, err := s.policy.Capacity(ctx)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("read capacity: %w", err)
	}
	return QueueStatus{
		CurrentQueueSize: count,
		MaxQueueSize:     c.EffectiveMaxQueueSize,
		TotalCapacity:    c.TotalCapacity,
		IsOfficeHours:    c.OfficeHours,
		OverflowActive:   c.OverflowActive,
	}, nil
}
