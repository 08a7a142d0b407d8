package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/store"
)

// Poll refreshes the session's liveness. It returns ErrSessionNotFound when
// the session is unknown or inactive.
func (s *Service) Poll(ctx context.Context, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if !session.IsLive() {
		return ErrSessionNotFound
	}

	err = s.sessions.Touch(ctx, sessionID, s.policy.Now())
	if errors.Is(err, store.ErrNotFound) {
		// Expired between the read and the write.
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// GetSession returns the stored session or ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.ChatSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ChatSession{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}
