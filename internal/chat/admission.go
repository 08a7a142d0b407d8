package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/metrics"
)

func newSessionID() string {
	return uuid.New().String()
}

// StartChatResult is the outcome of a start-chat request.
type StartChatResult struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
	QueuePosition int    `json:"queuePosition"`
}

// StartChat admits userID into the queue if there is room. A refused request
// returns a populated result together with ErrQueueFull and has no side effects.
// Admission never assigns an agent.
func (s *Service) StartChat(ctx context.Context, userID string) (StartChatResult, error) {
	count, err := s.sessions.QueueCount(ctx)
	if err != nil {
		return StartChatResult{}, fmt.Errorf("count queue: %w", err)
	}

	now := s.policy.Now()
	maxMain := s.policy.MaxMainQueueSize()
	outcome := metrics.OutcomeAdmitted
	if count >= maxMain {
		if !s.policy.IsOfficeHours(now) || count >= maxMain+s.policy.OverflowBuffer() {
			metrics.AdmissionsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			slog.Info("Chat request rejected, queue full",
				"user_id", userID, "queue_size", count, "max_main_queue_size", maxMain)
			return StartChatResult{ErrorMessage: QueueFullMessage}, ErrQueueFull
		}
		outcome = metrics.OutcomeAdmittedOverflow
	}

	session := domain.ChatSession{
		ID:            s.newID(),
		UserID:        userID,
		CreatedAt:     now,
		LastPollTime:  now,
		Status:        domain.StatusQueued,
		QueuePosition: count + 1,
	}
	if err := s.sessions.Enqueue(ctx, session); err != nil {
		return StartChatResult{}, fmt.Errorf("enqueue session: %w", err)
	}
	metrics.AdmissionsTotal.WithLabelValues(outcome).Inc()

	slog.Info("Chat session queued",
		"session_id", session.ID, "user_id", userID, "queue_position", session.QueuePosition)
	return StartChatResult{
		Success:       true,
		SessionID:     session.ID,
		QueuePosition: session.QueuePosition,
	}, nil
}
