package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus int

// Session states. Inactive is transient; expired sessions are removed.
const (
	StatusQueued SessionStatus = iota
	StatusActive
	StatusInactive
)

// String returns the status name.
func (s SessionStatus) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusActive:
		return "Active"
	case StatusInactive:
		return "Inactive"
	default:
		return fmt.Sprintf("SessionStatus(%d)", int(s))
	}
}

// ParseSessionStatus parses a status name as produced by String.
func ParseSessionStatus(name string) (SessionStatus, error) {
	switch name {
	case "Queued":
		return StatusQueued, nil
	case "Active":
		return StatusActive, nil
	case "Inactive":
		return StatusInactive, nil
	}
	return 0, fmt.Errorf("unknown session status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ChatSession is a user's request for a chat, from admission to expiry.
type ChatSession struct {
	ID              string        `json:"sessionId"`
	UserID          string        `json:"userId"`
	CreatedAt       time.Time     `json:"createdAt"`
	LastPollTime    time.Time     `json:"lastPollTime"`
	Status          SessionStatus `json:"status"`
	QueuePosition   int           `json:"queuePosition"`
	AssignedAgentID string        `json:"assignedAgentId,omitempty"`
}

// IsLive reports whether the session still counts against queue capacity.
func (s *ChatSession) IsLive() bool {
	return s.Status != StatusInactive
}

// PollExpired reports whether the session has gone at least window
// without a poll as of now.
func (s *ChatSession) PollExpired(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastPollTime) >= window
}
