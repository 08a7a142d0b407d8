package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/chatqueue/internal/domain"
)

// MemorySessionStore implements SessionStore in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.ChatSession
	order    []string
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.ChatSession),
	}
}

// Enqueue inserts a new session and appends it to the admission order.
func (s *MemorySessionStore) Enqueue(_ context.Context, session domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("enqueue session %s: duplicate id", session.ID)
	}
	s.sessions[session.ID] = session
	if session.Status == domain.StatusQueued {
		s.order = append(s.order, session.ID)
	}
	return nil
}

// Get returns a copy of the session.
func (s *MemorySessionStore) Get(_ context.Context, id string) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.ChatSession{}, ErrNotFound
	}
	return session, nil
}

// Update replaces the stored session.
func (s *MemorySessionStore) Update(_ context.Context, session domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

// Touch refreshes LastPollTime.
func (s *MemorySessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	session.LastPollTime = at
	s.sessions[id] = session
	return nil
}

// Activate binds the session to an agent.
func (s *MemorySessionStore) Activate(_ context.Context, id, agentID string) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return domain.ChatSession{}, ErrNotFound
	}
	session.Status = domain.StatusActive
	session.AssignedAgentID = agentID
	s.sessions[id] = session
	return session, nil
}

// Remove deletes the session if present.
func (s *MemorySessionStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// RemoveIfStale deletes the session if it has not been polled since cutoff.
func (s *MemorySessionStore) RemoveIfStale(_ context.Context, id string, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.LastPollTime.After(cutoff) {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// QueueCount counts live sessions.
func (s *MemorySessionStore) QueueCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, session := range s.sessions {
		if session.IsLive() {
			n++
		}
	}
	return n, nil
}

// DequeueNextQueued pops the oldest id that still refers to a Queued session.
func (s *MemorySessionStore) DequeueNextQueued(_ context.Context) (domain.ChatSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.order) > 0 {
		id := s.order[0]
		s.order[0] = ""
		s.order = s.order[1:]

		session, ok := s.sessions[id]
		if ok && session.Status == domain.StatusQueued {
			return session, true, nil
		}
	}
	return domain.ChatSession{}, false, nil
}

// Requeue pushes id back to the head of the admission order.
func (s *MemorySessionStore) Requeue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	s.order = append([]string{id}, s.order...)
	return nil
}

// ListActive returns live sessions oldest first.
func (s *MemorySessionStore) ListActive(_ context.Context) ([]domain.ChatSession, error) {
	s.mu.Lock()
	out := make([]domain.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.IsLive() {
			out = append(out, session)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].QueuePosition < out[j].QueuePosition
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryAgentStore implements AgentStore in process memory.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	ids    []string
}

// NewMemoryAgentStore creates an in-memory agent store holding agents.
func NewMemoryAgentStore(agents ...domain.Agent) *MemoryAgentStore {
	s := &MemoryAgentStore{agents: make(map[string]domain.Agent)}
	_ = s.Seed(context.Background(), agents)
	return s
}

// Seed inserts agents that are not yet present.
func (s *MemoryAgentStore) Seed(_ context.Context, agents []domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range agents {
		if _, exists := s.agents[a.ID]; exists {
			continue
		}
		s.agents[a.ID] = a.Clone()
		s.ids = append(s.ids, a.ID)
	}
	return nil
}

// ListAll returns every agent in seed order.
func (s *MemoryAgentStore) ListAll(_ context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Agent, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.agents[id].Clone())
	}
	return out, nil
}

// ListAvailable returns on-shift agents with spare capacity.
func (s *MemoryAgentStore) ListAvailable(ctx context.Context) ([]domain.Agent, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.IsAvailable() {
			out = append(out, a)
		}
	}
	return out, nil
}

// Get returns a copy of the agent.
func (s *MemoryAgentStore) Get(_ context.Context, id string) (domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, ErrNotFound
	}
	return a.Clone(), nil
}

// Update replaces the stored agent.
func (s *MemoryAgentStore) Update(_ context.Context, agent domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agent.ID]; !ok {
		return ErrNotFound
	}
	s.agents[agent.ID] = agent.Clone()
	return nil
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ AgentStore   = (*MemoryAgentStore)(nil)
)
