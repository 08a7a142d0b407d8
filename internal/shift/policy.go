// Package shift decides which agents are on shift and how large the queue
// may grow. Base-team windows and office hours are computed here and nowhere else.
package shift

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/chatqueue/internal/clock"
	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/metrics"
	"github.com/ashureev/chatqueue/internal/roster"
	"github.com/ashureev/chatqueue/internal/store"
)

// DefaultOverflowQueueBuffer is the extra queue room granted while overflow is active.
const DefaultOverflowQueueBuffer = 36

// MaxQueueSize returns floor(1.5 × baseCapacity).
func MaxQueueSize(baseCapacity int) int {
	return baseCapacity * 3 / 2
}

// DeactivationThreshold returns floor(0.75 × maxQueueSize).
func DeactivationThreshold(maxQueueSize int) int {
	return maxQueueSize * 3 / 4
}

// NextOverflowState applies the overflow hysteresis rule. Overflow turns on
// only during office hours once the queue reaches maxQueueSize, and once on it
// stays on until the queue drops below the deactivation threshold or office
// hours end.
func NextOverflowState(active, officeHours bool, queueCount, maxQueueSize int) bool {
	if !active {
		return officeHours && queueCount >= maxQueueSize
	}
	if queueCount < DeactivationThreshold(maxQueueSize) || !officeHours {
		return false
	}
	return true
}

// Decision is the outcome of evaluating the policy at one instant.
type Decision struct {
	At                    time.Time
	BaseTeam              string
	BaseMembers           []string
	BaseCapacity          int
	MaxQueueSize          int
	DeactivationThreshold int
	QueueCount            int
	OfficeHours           bool
	OverflowWasActive     bool
	OverflowActive        bool
}

// OnShift returns the ids that should be on shift under this decision.
func (d Decision) OnShift(r *roster.Roster) map[string]bool {
	ids := make(map[string]bool, len(d.BaseMembers)+len(r.Overflow.Members))
	for _, id := range d.BaseMembers {
		ids[id] = true
	}
	if d.OverflowActive {
		for _, id := range r.Overflow.Members {
			ids[id] = true
		}
	}
	return ids
}

// Capacity is the queue and staffing picture exposed to callers.
type Capacity struct {
	MaxMainQueueSize int
	OverflowActive   bool
	// EffectiveMaxQueueSize includes the overflow buffer when overflow is active.
	EffectiveMaxQueueSize int
	// TotalCapacity sums MaxCapacity over every agent currently on shift.
	TotalCapacity int
	OfficeHours   bool
}

// Policy evaluates and applies shift changes.
type Policy struct {
	roster         *roster.Roster
	agents         store.AgentStore
	sessions       store.SessionStore
	clock          clock.Clock
	overflowBuffer int
}

// NewPolicy creates a shift policy. An overflowBuffer of 0 disables overflow
// admission; a negative value selects DefaultOverflowQueueBuffer.
func NewPolicy(r *roster.Roster, agents store.AgentStore, sessions store.SessionStore, c clock.Clock, overflowBuffer int) *Policy {
	if overflowBuffer < 0 {
		overflowBuffer = DefaultOverflowQueueBuffer
	}
	return &Policy{
		roster:         r,
		agents:         agents,
		sessions:       sessions,
		clock:          c,
		overflowBuffer: overflowBuffer,
	}
}

// Now returns the policy clock's time.
func (p *Policy) Now() time.Time {
	return p.clock.Now()
}

// OverflowBuffer returns the configured overflow queue buffer.
func (p *Policy) OverflowBuffer() int {
	return p.overflowBuffer
}

// BaseTeam returns the base team scheduled at t.
func (p *Policy) BaseTeam(t time.Time) roster.Team {
	return p.roster.TeamAt(t)
}

// IsOfficeHours reports whether overflow may be activated at t.
func (p *Policy) IsOfficeHours(t time.Time) bool {
	return p.roster.OfficeHours.Contains(t)
}

// MaxMainQueueSize returns the queue ceiling derived from the current base team alone.
func (p *Policy) MaxMainQueueSize() int {
	team := p.BaseTeam(p.clock.Now())
	return MaxQueueSize(p.roster.Capacity(team.Members))
}

func (p *Policy) overflowOnShift(agents []domain.Agent) bool {
	for _, a := range agents {
		if a.OnShift && p.roster.IsOverflow(a.ID) {
			return true
		}
	}
	return false
}

// Evaluate computes the decision for the current instant without writing anything.
func (p *Policy) Evaluate(ctx context.Context) (Decision, []domain.Agent, error) {
	now := p.clock.Now()

	agents, err := p.agents.ListAll(ctx)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("list agents: %w", err)
	}
	queueCount, err := p.sessions.QueueCount(ctx)
	if err != nil {
		return Decision{}, nil, fmt.Errorf("count queue: %w", err)
	}

	team := p.BaseTeam(now)
	baseCapacity := p.roster.Capacity(team.Members)
	maxQueue := MaxQueueSize(baseCapacity)
	office := p.IsOfficeHours(now)
	wasActive := p.overflowOnShift(agents)

	d := Decision{
		At:                    now,
		BaseTeam:              team.Name,
		BaseMembers:           team.Members,
		BaseCapacity:          baseCapacity,
		MaxQueueSize:          maxQueue,
		DeactivationThreshold: DeactivationThreshold(maxQueue),
		QueueCount:            queueCount,
		OfficeHours:           office,
		OverflowWasActive:     wasActive,
		OverflowActive:        NextOverflowState(wasActive, office, queueCount, maxQueue),
	}
	return d, agents, nil
}

// UpdateShifts evaluates the policy and writes OnShift for every agent whose
// flag changes: true for the base team plus overflow if active, false otherwise.
func (p *Policy) UpdateShifts(ctx context.Context) (Decision, error) {
	d, agents, err := p.Evaluate(ctx)
	if err != nil {
		return Decision{}, err
	}

	if d.OverflowActive != d.OverflowWasActive {
		slog.Info("Overflow team state changed",
			"active", d.OverflowActive,
			"queue_count", d.QueueCount,
			"max_queue_size", d.MaxQueueSize,
			"deactivation_threshold", d.DeactivationThreshold,
			"office_hours", d.OfficeHours)
	}

	want := d.OnShift(p.roster)
	changed := 0
	for _, a := range agents {
		should := want[a.ID]
		if a.OnShift == should {
			continue
		}
		a.OnShift = should
		if err := p.agents.Update(ctx, a); err != nil {
			return d, fmt.Errorf("update shift for agent %s: %w", a.ID, err)
		}
		changed++
	}
	if changed > 0 {
		slog.Info("Agent shifts updated", "base_team", d.BaseTeam, "changed", changed, "overflow_active", d.OverflowActive)
	}

	metrics.QueueSize.Set(float64(d.QueueCount))
	metrics.MaxQueueSize.Set(float64(d.MaxQueueSize))
	metrics.AgentsOnShift.Set(float64(len(want)))
	metrics.SetOverflowActive(d.OverflowActive)
	return d, nil
}

// OnShiftAgents returns every agent currently flagged on shift.
func (p *Policy) OnShiftAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := p.agents.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	out := agents[:0]
	for _, a := range agents {
		if a.OnShift {
			out = append(out, a)
		}
	}
	return out, nil
}

// Capacity reports current queue ceilings and on-shift capacity from stored shift flags.
func (p *Policy) Capacity(ctx context.Context) (Capacity, error) {
	onShift, err := p.OnShiftAgents(ctx)
	if err != nil {
		return Capacity{}, err
	}

	c := Capacity{
		MaxMainQueueSize: p.MaxMainQueueSize(),
		OverflowActive:   p.overflowOnShift(onShift),
		OfficeHours:      p.IsOfficeHours(p.clock.Now()),
	}
	for _, a := range onShift {
		c.TotalCapacity += a.MaxCapacity()
	}
	c.EffectiveMaxQueueSize = c.MaxMainQueueSize
	if c.OverflowActive {
		c.EffectiveMaxQueueSize += p.overflowBuffer
	}
	return c, nil
}

// CheckOverflowBuffer logs a warning when the configured buffer no longer
// matches 1.5 × the overflow roster's capacity.
func (p *Policy) CheckOverflowBuffer() bool {
	derived := MaxQueueSize(p.roster.Capacity(p.roster.Overflow.Members))
	if derived != p.overflowBuffer {
		slog.Warn("Overflow queue buffer does not match overflow roster capacity",
			"configured", p.overflowBuffer,
			"derived_from_roster", derived)
		return false
	}
	return true
}
