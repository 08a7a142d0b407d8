// Package domain contains core domain types for the chat queue.
package domain

import (
	"fmt"
	"math"
)

// Seniority is an agent's seniority level.
type Seniority int

// Seniority levels.
const (
	Junior Seniority = iota
	MidLevel
	Senior
	TeamLead
)

var seniorityNames = map[Seniority]string{
	Junior:   "Junior",
	MidLevel: "MidLevel",
	Senior:   "Senior",
	TeamLead: "TeamLead",
}

// String returns the seniority name.
func (s Seniority) String() string {
	if name, ok := seniorityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Seniority(%d)", int(s))
}

// ParseSeniority parses a seniority name as produced by String.
func ParseSeniority(name string) (Seniority, error) {
	for s, n := range seniorityNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown seniority %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Seniority) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Seniority) UnmarshalText(text []byte) error {
	parsed, err := ParseSeniority(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Multiplier is the fraction of the ten-chat ceiling an agent of this
// seniority may carry.
func (s Seniority) Multiplier() float64 {
	switch s {
	case Junior:
		return 0.4
	case MidLevel:
		return 0.6
	case Senior:
		return 0.8
	case TeamLead:
		return 0.5
	default:
		return 0.4
	}
}

// Capacity returns floor(10 × multiplier).
func (s Seniority) Capacity() int {
	return int(math.Floor(10 * s.Multiplier()))
}

// Priority orders agents for assignment; lower is offered chats first.
// Juniors go first and seniors last so senior staff stay free for escalations.
func (s Seniority) Priority() int {
	switch s {
	case Junior:
		return 1
	case TeamLead:
		return 2
	case MidLevel:
		return 3
	case Senior:
		return 4
	default:
		return 99
	}
}

// Agent is a support agent and their current load.
type Agent struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Seniority        Seniority       `json:"seniority"`
	OnShift          bool            `json:"onShift"`
	ActiveSessionIDs map[string]bool `json:"activeSessionIds"`
}

// MaxCapacity returns the number of concurrent chats the agent may hold.
func (a *Agent) MaxCapacity() int {
	return a.Seniority.Capacity()
}

// Load returns the number of chats currently bound to the agent.
func (a *Agent) Load() int {
	return len(a.ActiveSessionIDs)
}

// IsAvailable reports whether the agent is on shift and under capacity.
func (a *Agent) IsAvailable() bool {
	return a.OnShift && a.Load() < a.MaxCapacity()
}

// Clone returns a deep copy so callers can mutate it without touching
// the stored record.
func (a Agent) Clone() Agent {
	ids := make(map[string]bool, len(a.ActiveSessionIDs))
	for id := range a.ActiveSessionIDs {
		ids[id] = true
	}
	a.ActiveSessionIDs = ids
	return a
}
