// Package monitor runs the periodic cycle that applies shifts, expires
// silent sessions, and drains the queue into available agents.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/chatqueue/internal/clock"
	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/metrics"
	"github.com/ashureev/chatqueue/internal/shift"
	"github.com/ashureev/chatqueue/internal/store"
)

// Defaults for Config.
const (
	DefaultInterval       = time.Second
	DefaultLivenessWindow = 3 * time.Second

	// unhealthyAfter is the number of consecutive failed cycles after which
	// the monitor reports itself as not serving.
	unhealthyAfter = 3
)

// ShiftUpdater applies the shift policy.
type ShiftUpdater interface {
	UpdateShifts(ctx context.Context) (shift.Decision, error)
}

// Assigner ranks agents and binds sessions to them.
type Assigner interface {
	RankAvailableAgents(ctx context.Context) ([]domain.Agent, error)
	Assign(ctx context.Context, sessionID, agentID string) (bool, error)
	Release(ctx context.Context, sessionID, agentID string) error
}

// Notifier is told about session transitions made by the monitor.
type Notifier interface {
	SessionActivated(session domain.ChatSession)
	SessionExpired(sessionID string)
}

// HealthReporter receives the monitor's serving state.
type HealthReporter interface {
	SetServing(serving bool)
}

// Config controls cycle timing and expiry behaviour.
type Config struct {
	Interval       time.Duration
	LivenessWindow time.Duration
	// ReleaseOnExpiry frees the agent binding of an Active session when it
	// expires. When false the binding is left in place and logged.
	ReleaseOnExpiry bool
}

// Monitor drives the scheduling cycle.
type Monitor struct {
	cfg      Config
	shifts   ShiftUpdater
	sessions store.SessionStore
	assigner Assigner
	clock    clock.Clock
	notifier Notifier
	health   HealthReporter

	faults int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier sets the session transition notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithHealth sets the health reporter.
func WithHealth(h HealthReporter) Option {
	return func(m *Monitor) { m.health = h }
}

// New creates a monitor. Zero durations in cfg select the defaults.
func New(cfg Config, shifts ShiftUpdater, sessions store.SessionStore, assigner Assigner, c clock.Clock, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = DefaultLivenessWindow
	}
	m := &Monitor{
		cfg:      cfg,
		shifts:   shifts,
		sessions: sessions,
		assigner: assigner,
		clock:    c,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes one cycle immediately and then one per interval until ctx is
// cancelled. Cycle failures are logged and never stop the loop.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	slog.Info("Queue monitor started",
		"interval", m.cfg.Interval,
		"liveness_window", m.cfg.LivenessWindow,
		"release_on_expiry", m.cfg.ReleaseOnExpiry)
	m.setServing(true)
	defer m.setServing(false)

	for {
		m.runSafely(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("Queue monitor shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runSafely runs one cycle, recovering panics and recording the outcome.
func (m *Monitor) runSafely(ctx context.Context) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in monitor cycle: %v", r)
			}
		}()
		return m.RunCycle(ctx)
	}()
	metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())

	if err == nil {
		if m.faults >= unhealthyAfter {
			slog.Info("Queue monitor recovered", "failed_cycles", m.faults)
			m.setServing(true)
		}
		m.faults = 0
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}

	m.faults++
	metrics.CycleFaultsTotal.Inc()
	slog.Error("Queue monitor cycle failed", "error", err, "consecutive_failures", m.faults)
	if m.faults == unhealthyAfter {
		m.setServing(false)
	}
}

func (m *Monitor) setServing(serving bool) {
	if m.health != nil {
		m.health.SetServing(serving)
	}
}

// RunCycle performs one pass: apply shifts, expire stale sessions, then drain
// the queue giving each ranked agent at most one new session.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if _, err := m.shifts.UpdateShifts(ctx); err != nil {
		return fmt.Errorf("update shifts: %w", err)
	}
	if err := m.expireSessions(ctx); err != nil {
		return fmt.Errorf("expire sessions: %w", err)
	}
	if err := m.drainQueue(ctx); err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}
	return nil
}

func (m *Monitor) expireSessions(ctx context.Context) error {
	now := m.clock.Now()
	sessions, err := m.sessions.ListActive(ctx)
	if err != nil {
		return err
	}

	cutoff := now.Add(-m.cfg.LivenessWindow)
	expired := 0
	for _, s := range sessions {
		if !s.PollExpired(now, m.cfg.LivenessWindow) {
			continue
		}
		// A poll may land after the snapshot.
		removed, err := m.sessions.RemoveIfStale(ctx, s.ID, cutoff)
		if err != nil {
			return fmt.Errorf("remove session %s: %w", s.ID, err)
		}
		if !removed {
			continue
		}
		expired++
		metrics.ExpiredSessionsTotal.WithLabelValues(s.Status.String()).Inc()

		if s.Status == domain.StatusActive && s.AssignedAgentID != "" {
			if m.cfg.ReleaseOnExpiry {
				if err := m.assigner.Release(ctx, s.ID, s.AssignedAgentID); err != nil {
					return fmt.Errorf("release session %s: %w", s.ID, err)
				}
			} else {
				slog.Warn("Expired session still bound to agent",
					"session_id", s.ID, "agent_id", s.AssignedAgentID)
			}
		}
		if m.notifier != nil {
			m.notifier.SessionExpired(s.ID)
		}
	}
	if expired > 0 {
		slog.Info("Expired inactive chat sessions", "count", expired)
	}
	return nil
}

func (m *Monitor) drainQueue(ctx context.Context) error {
	agents, err := m.assigner.RankAvailableAgents(ctx)
	if err != nil {
		return err
	}

	for _, agent := range agents {
		session, ok, err := m.sessions.DequeueNextQueued(ctx)
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}
		if !ok {
			return nil
		}

		assigned, err := m.assigner.Assign(ctx, session.ID, agent.ID)
		if err != nil || !assigned {
			if rqErr := m.sessions.Requeue(ctx, session.ID); rqErr != nil && !errors.Is(rqErr, store.ErrNotFound) {
				return errors.Join(err, fmt.Errorf("requeue session %s: %w", session.ID, rqErr))
			}
			if err != nil {
				return fmt.Errorf("assign session %s: %w", session.ID, err)
			}
			metrics.RequeuesTotal.Inc()
			continue
		}

		active, err := m.sessions.Activate(ctx, session.ID, agent.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Expired by a concurrent caller after the dequeue.
			if err := m.assigner.Release(ctx, session.ID, agent.ID); err != nil {
				return fmt.Errorf("release session %s: %w", session.ID, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("activate session %s: %w", session.ID, err)
		}

		slog.Info("Chat session assigned",
			"session_id", active.ID, "agent_id", agent.ID, "seniority", agent.Seniority.String())
		if m.notifier != nil {
			m.notifier.SessionActivated(active)
		}
	}
	return nil
}
