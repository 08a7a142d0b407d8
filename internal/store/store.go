// Package store provides session and agent persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/chatqueue/internal/domain"
)

// ErrNotFound is returned when a session or agent id does not resolve.
var ErrNotFound = errors.New("not found")

// SessionStore holds chat sessions and their FIFO admission order.
// Every method is atomic with respect to every other.
type SessionStore interface {
	// Enqueue inserts a new Queued session and appends its id to the admission order.
	Enqueue(ctx context.Context, session domain.ChatSession) error

	// Get returns a copy of the session, or ErrNotFound.
	Get(ctx context.Context, id string) (domain.ChatSession, error)

	// Update replaces the stored session by id. Returns ErrNotFound if absent.
	Update(ctx context.Context, session domain.ChatSession) error

	// Touch sets LastPollTime without touching any other field.
	Touch(ctx context.Context, id string, at time.Time) error

	// Activate moves a session to Active and binds it to agentID.
	Activate(ctx context.Context, id, agentID string) (domain.ChatSession, error)

	// Remove deletes a session. Removing an unknown id is a no-op.
	Remove(ctx context.Context, id string) error

	// RemoveIfStale deletes the session only if its LastPollTime is at or
	// before cutoff, and reports whether it did.
	RemoveIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)

	// QueueCount counts sessions that are not Inactive.
	QueueCount(ctx context.Context) (int, error)

	// DequeueNextQueued pops ids off the admission order until one still refers
	// to a Queued session and returns it unchanged. ok is false when the order
	// is exhausted. A given session is handed to at most one caller.
	DequeueNextQueued(ctx context.Context) (session domain.ChatSession, ok bool, err error)

	// Requeue puts a dequeued id back at the head of the admission order.
	Requeue(ctx context.Context, id string) error

	// ListActive returns non-Inactive sessions ordered by CreatedAt ascending.
	ListActive(ctx context.Context) ([]domain.ChatSession, error)
}

// AgentStore holds the agent roster. Mutation is whole-record replace by id.
type AgentStore interface {
	// ListAll returns every agent.
	ListAll(ctx context.Context) ([]domain.Agent, error)

	// ListAvailable returns agents that are on shift and under capacity.
	ListAvailable(ctx context.Context) ([]domain.Agent, error)

	// Get returns a copy of the agent, or ErrNotFound.
	Get(ctx context.Context, id string) (domain.Agent, error)

	// Update replaces the stored agent by id. Returns ErrNotFound if absent.
	Update(ctx context.Context, agent domain.Agent) error

	// Seed inserts agents whose ids are not already present.
	Seed(ctx context.Context, agents []domain.Agent) error
}
