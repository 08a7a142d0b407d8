package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/chatqueue/internal/clock"
	"github.com/ashureev/chatqueue/internal/config"
	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/roster"
	"github.com/ashureev/chatqueue/internal/shift"
	"github.com/ashureev/chatqueue/internal/store"
)

var (
	fridayOffice  = time.Date(2023, 11, 3, 14, 0, 0, 0, time.UTC)
	fridayEvening = time.Date(2023, 11, 3, 19, 0, 0, 0, time.UTC)
)

// dayTeamOf14 keeps one base team of capacity 14 on from 08:00 to 20:00,
// so maxMainQueueSize is 21 both inside and after office hours.
const dayTeamOf14 = `
agents:
  - {id: j1, name: Junior 1, seniority: Junior}
  - {id: j2, name: Junior 2, seniority: Junior}
  - {id: m1, name: Mid 1, seniority: MidLevel}
  - {id: n1, name: Night 1, seniority: Senior}
  - {id: of1, name: Overflow 1, seniority: Junior}
teams:
  - {name: Early, start_hour: 0, end_hour: 8, members: [n1]}
  - {name: Day, start_hour: 8, end_hour: 20, members: [j1, j2, m1]}
  - {name: Late, start_hour: 20, end_hour: 24, members: []}
overflow: {members: [of1]}
office_hours: {start_hour: 9, end_hour: 18, days: [Monday, Tuesday, Wednesday, Thursday, Friday]}
`

type fixture struct {
	clock    *clock.Manual
	sessions *store.MemorySessionStore
	agents   *store.MemoryAgentStore
	policy   *shift.Policy
	svc      *Service
}

func newFixture(t *testing.T, r *roster.Roster, at time.Time) *fixture {
	t.Helper()
	return newFixtureWithBuffer(t, r, at, shift.DefaultOverflowQueueBuffer)
}

func newFixtureWithBuffer(t *testing.T, r *roster.Roster, at time.Time, overflowBuffer int) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clock.NewManual(at),
		sessions: store.NewMemorySessionStore(),
		agents:   store.NewMemoryAgentStore(r.SeedAgents()...),
	}
	f.policy = shift.NewPolicy(r, f.agents, f.sessions, f.clock, overflowBuffer)
	f.svc = NewService(f.sessions, f.policy)
	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("session-%03d", n)
	}
	return f
}

func (f *fixture) admit(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		res, err := f.svc.StartChat(context.Background(), fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		require.True(t, res.Success)
	}
}

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()
	r, err := roster.Parse([]byte(dayTeamOf14))
	require.NoError(t, err)
	return r
}

func TestStartChatQueuesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, roster.Default(), fridayOffice)

	res, err := f.svc.StartChat(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "session-001", res.SessionID)
	assert.Equal(t, 1, res.QueuePosition)
	assert.Empty(t, res.ErrorMessage)

	s, err := f.sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, s.Status)
	assert.Equal(t, "alice", s.UserID)
	assert.Empty(t, s.AssignedAgentID, "admission never assigns")
	assert.True(t, fridayOffice.Equal(s.LastPollTime))

	res, err = f.svc.StartChat(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, res.QueuePosition)
}

func TestStartChatAdmissionBoundary(t *testing.T) {
	tests := map[string]struct {
		at    time.Time
		admit bool
	}{
		"outside office hours request 22 is rejected":    {at: fridayEvening, admit: false},
		"during office hours request 22 uses the buffer": {at: fridayOffice, admit: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, testRoster(t), tc.at)
			require.Equal(t, 21, f.policy.MaxMainQueueSize())
			f.admit(t, 21)

			res, err := f.svc.StartChat(context.Background(), "user-22")
			if !tc.admit {
				assert.ErrorIs(t, err, ErrQueueFull)
				assert.False(t, res.Success)
				assert.Equal(t, QueueFullMessage, res.ErrorMessage)
				n, err := f.sessions.QueueCount(context.Background())
				require.NoError(t, err)
				assert.Equal(t, 21, n, "rejection has no side effects")
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, 22, res.QueuePosition)
		})
	}
}

func TestStartChatRejectsPastOverflowBuffer(t *testing.T) {
	f := newFixture(t, testRoster(t), fridayOffice)
	f.admit(t, 21+36)

	res, err := f.svc.StartChat(context.Background(), "one-too-many")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, res.Success)
}

func TestStartChatZeroOverflowBufferFromConfig(t *testing.T) {
	t.Setenv("OVERFLOW_QUEUE_BUFFER", "0")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 0, cfg.OverflowQueueBuffer)

	f := newFixtureWithBuffer(t, testRoster(t), fridayOffice, cfg.OverflowQueueBuffer)
	f.admit(t, 21)

	res, err := f.svc.StartChat(context.Background(), "user-22")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, res.Success)
	assert.Equal(t, QueueFullMessage, res.ErrorMessage)
}

func TestStartChatCountsActiveSessionsAsLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testRoster(t), fridayEvening)
	f.admit(t, 21)

	for i := 0; i < 5; i++ {
		s, ok, err := f.sessions.DequeueNextQueued(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = f.sessions.Activate(ctx, s.ID, "j1")
		require.NoError(t, err)
	}

	_, err := f.svc.StartChat(ctx, "late")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPoll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, roster.Default(), fridayOffice)

	res, err := f.svc.StartChat(ctx, "alice")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	require.NoError(t, f.svc.Poll(ctx, res.SessionID))

	s, err := f.sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(s.LastPollTime))

	assert.ErrorIs(t, f.svc.Poll(ctx, "nope"), ErrSessionNotFound)

	s.Status = domain.StatusInactive
	require.NoError(t, f.sessions.Update(ctx, s))
	assert.ErrorIs(t, f.svc.Poll(ctx, res.SessionID), ErrSessionNotFound)
}

func TestPollDoesNotRevertActivation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, roster.Default(), fridayOffice)

	res, err := f.svc.StartChat(ctx, "alice")
	require.NoError(t, err)
	_, err = f.sessions.Activate(ctx, res.SessionID, "j1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Poll(ctx, res.SessionID))
	s, err := f.svc.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, s.Status)
	assert.Equal(t, "j1", s.AssignedAgentID)
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, roster.Default(), fridayOffice)

	res, err := f.svc.StartChat(ctx, "alice")
	require.NoError(t, err)

	s, err := f.svc.GetSession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, s.ID)

	_, err = f.svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQueueStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, roster.Default(), fridayOffice)
	f.admit(t, 31)

	_, err := f.policy.UpdateShifts(ctx)
	require.NoError(t, err)

	st, err := f.svc.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStatus{
		CurrentQueueSize: 31,
		MaxQueueSize:     31 + 36,
		TotalCapacity:    21 + 24,
		IsOfficeHours:    true,
		OverflowActive:   true,
	}, st)

	f.clock.Set(fridayEvening)
	_, err = f.policy.UpdateShifts(ctx)
	require.NoError(t, err)

	st, err = f.svc.QueueStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.OverflowActive)
	assert.False(t, st.IsOfficeHours)
	assert.Equal(t, 33, st.MaxQueueSize, "team B after 16:00")
	assert.Equal(t, 22, st.TotalCapacity)
}
