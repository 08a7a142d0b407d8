// Package assign ranks available agents and binds sessions to them.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/metrics"
	"github.com/ashureev/chatqueue/internal/store"
)

// Service binds sessions to agents. Assign and Release are serialized so a
// read-modify-write of an agent's active set never interleaves with another.
type Service struct {
	mu     sync.Mutex
	agents store.AgentStore
}

// NewService creates an assignment service over agents.
func NewService(agents store.AgentStore) *Service {
	return &Service{agents: agents}
}

// RankAvailableAgents returns on-shift agents under capacity ordered by
// seniority priority, then current load. Ties keep roster order.
func (s *Service) RankAvailableAgents(ctx context.Context) ([]domain.Agent, error) {
	available, err := s.agents.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available agents: %w", err)
	}
	sort.SliceStable(available, func(i, j int) bool {
		pi, pj := available[i].Seniority.Priority(), available[j].Seniority.Priority()
		if pi != pj {
			return pi < pj
		}
		return available[i].Load() < available[j].Load()
	})
	return available, nil
}

// Assign adds sessionID to the agent's active set if the agent is still
// available. It returns false, with no error, when the agent is gone,
// off shift, or full.
func (s *Service) Assign(ctx context.Context, sessionID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.agents.Get(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get agent %s: %w", agentID, err)
	}
	if !agent.IsAvailable() {
		slog.Debug("Agent no longer available, skipping assignment",
			"agent_id", agentID, "session_id", sessionID, "on_shift", agent.OnShift, "load", agent.Load())
		return false, nil
	}

	if agent.ActiveSessionIDs == nil {
		agent.ActiveSessionIDs = make(map[string]bool)
	}
	agent.ActiveSessionIDs[sessionID] = true
	if err := s.agents.Update(ctx, agent); err != nil {
		return false, fmt.Errorf("update agent %s: %w", agentID, err)
	}
	metrics.AssignmentsTotal.WithLabelValues(agent.Seniority.String()).Inc()
	return true, nil
}

// Release removes sessionID from the agent's active set. Releasing a session
// the agent does not hold, or an unknown agent, is a no-op.
func (s *Service) Release(ctx context.Context, sessionID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.agents.Get(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get agent %s: %w", agentID, err)
	}
	if !agent.ActiveSessionIDs[sessionID] {
		return nil
	}
	delete(agent.ActiveSessionIDs, sessionID)
	if err := s.agents.Update(ctx, agent); err != nil {
		return fmt.Errorf("update agent %s: %w", agentID, err)
	}
	return nil
}
