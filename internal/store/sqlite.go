package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/chatqueue/internal/domain"
	"github.com/ashureev/chatqueue/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions and agents in SQLite.
// Use Sessions and Agents to obtain the two store views.
type SQLiteStore struct {
	db        *sql.DB
	dequeueMu sync.Mutex // serializes DequeueNextQueued/Requeue so a session is popped once
	agentMu   sync.Mutex
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_poll_time INTEGER NOT NULL,
		status TEXT NOT NULL,
		queue_position INTEGER NOT NULL,
		assigned_agent_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_created ON chat_sessions(created_at);

	CREATE TABLE IF NOT EXISTS queue_order (
		seq INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seniority TEXT NOT NULL,
		on_shift INTEGER NOT NULL DEFAULT 0,
		active_session_ids TEXT NOT NULL DEFAULT '[]',
		seed_order INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Sessions returns the SessionStore view.
func (s *SQLiteStore) Sessions() *SQLiteSessionStore {
	return &SQLiteSessionStore{s: s}
}

// Agents returns the AgentStore view.
func (s *SQLiteStore) Agents() *SQLiteAgentStore {
	return &SQLiteAgentStore{s: s}
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, op, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func requireAffected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SQLiteSessionStore implements SessionStore on a SQLiteStore.
type SQLiteSessionStore struct {
	s *SQLiteStore
}

const sessionColumns = `session_id, user_id, created_at, last_poll_time, status, queue_position, assigned_agent_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.ChatSession, error) {
	var session domain.ChatSession
	var createdAt, lastPoll int64
	var status string
	var agentID sql.NullString

	if err := row.Scan(&session.ID, &session.UserID, &createdAt, &lastPoll,
		&status, &session.QueuePosition, &agentID); err != nil {
		return domain.ChatSession{}, err
	}

	parsed, err := domain.ParseSessionStatus(status)
	if err != nil {
		return domain.ChatSession{}, err
	}
	session.Status = parsed
	session.CreatedAt = time.Unix(0, createdAt).UTC()
	session.LastPollTime = time.Unix(0, lastPoll).UTC()
	session.AssignedAgentID = agentID.String
	return session, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Enqueue inserts the session and appends it to the admission order.
func (q *SQLiteSessionStore) Enqueue(ctx context.Context, session domain.ChatSession) error {
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "enqueue session", func() error {
		tx, err := q.s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin enqueue: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `INSERT INTO chat_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			session.ID, session.UserID, session.CreatedAt.UnixNano(), session.LastPollTime.UnixNano(),
			session.Status.String(), session.QueuePosition, nullable(session.AssignedAgentID))
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if session.Status == domain.StatusQueued {
			if _, err := tx.ExecContext(ctx, `INSERT INTO queue_order (session_id) VALUES (?)`, session.ID); err != nil {
				return fmt.Errorf("append queue order: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Get returns the session by id.
func (q *SQLiteSessionStore) Get(ctx context.Context, id string) (domain.ChatSession, error) {
	row := q.s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatSession{}, ErrNotFound
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// Update replaces the stored session.
func (q *SQLiteSessionStore) Update(ctx context.Context, session domain.ChatSession) error {
	res, err := q.s.exec(ctx, "update session", `
		UPDATE chat_sessions SET user_id = ?, created_at = ?, last_poll_time = ?,
			status = ?, queue_position = ?, assigned_agent_id = ?
		WHERE session_id = ?`,
		session.UserID, session.CreatedAt.UnixNano(), session.LastPollTime.UnixNano(),
		session.Status.String(), session.QueuePosition, nullable(session.AssignedAgentID), session.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Touch refreshes LastPollTime.
func (q *SQLiteSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := q.s.exec(ctx, "touch session",
		`UPDATE chat_sessions SET last_poll_time = ? WHERE session_id = ?`, at.UnixNano(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Activate binds the session to an agent.
func (q *SQLiteSessionStore) Activate(ctx context.Context, id, agentID string) (domain.ChatSession, error) {
	res, err := q.s.exec(ctx, "activate session",
		`UPDATE chat_sessions SET status = ?, assigned_agent_id = ? WHERE session_id = ?`,
		domain.StatusActive.String(), agentID, id)
	if err != nil {
		return domain.ChatSession{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.ChatSession{}, err
	}
	return q.Get(ctx, id)
}

// Remove deletes the session if present. Its queue_order entry is left for
// DequeueNextQueued to skip.
func (q *SQLiteSessionStore) Remove(ctx context.Context, id string) error {
	_, err := q.s.exec(ctx, "remove session", `DELETE FROM chat_sessions WHERE session_id = ?`, id)
	return err
}

// RemoveIfStale deletes the session if it has not been polled since cutoff.
func (q *SQLiteSessionStore) RemoveIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	res, err := q.s.exec(ctx, "remove stale session",
		`DELETE FROM chat_sessions WHERE session_id = ? AND last_poll_time <= ?`, id, cutoff.UnixNano())
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// QueueCount counts live sessions.
func (q *SQLiteSessionStore) QueueCount(ctx context.Context) (int, error) {
	var n int
	err := q.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_sessions WHERE status != ?`,
		domain.StatusInactive.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// DequeueNextQueued pops the oldest id that still refers to a Queued session.
func (q *SQLiteSessionStore) DequeueNextQueued(ctx context.Context) (domain.ChatSession, bool, error) {
	q.s.dequeueMu.Lock()
	defer q.s.dequeueMu.Unlock()

	var (
		found   domain.ChatSession
		foundOK bool
	)
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "dequeue session", func() error {
		found, foundOK = domain.ChatSession{}, false

		tx, err := q.s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin dequeue: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for {
			var seq int64
			var id string
			err := tx.QueryRowContext(ctx, `SELECT seq, session_id FROM queue_order ORDER BY seq LIMIT 1`).Scan(&seq, &id)
			if errors.Is(err, sql.ErrNoRows) {
				return tx.Commit()
			}
			if err != nil {
				return fmt.Errorf("read queue head: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM queue_order WHERE seq = ?`, seq); err != nil {
				return fmt.Errorf("pop queue head: %w", err)
			}

			row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = ?`, id)
			session, err := scanSession(row)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("scan dequeued session: %w", err)
			}
			if session.Status != domain.StatusQueued {
				continue
			}
			found, foundOK = session, true
			return tx.Commit()
		}
	})
	if err != nil {
		return domain.ChatSession{}, false, err
	}
	return found, foundOK, nil
}

// Requeue pushes id back to the head of the admission order.
func (q *SQLiteSessionStore) Requeue(ctx context.Context, id string) error {
	q.s.dequeueMu.Lock()
	defer q.s.dequeueMu.Unlock()

	if _, err := q.Get(ctx, id); err != nil {
		return err
	}
	_, err := q.s.exec(ctx, "requeue session",
		`INSERT INTO queue_order (seq, session_id) VALUES ((SELECT COALESCE(MIN(seq), 1) - 1 FROM queue_order), ?)`, id)
	return err
}

// ListActive returns live sessions oldest first.
func (q *SQLiteSessionStore) ListActive(ctx context.Context) ([]domain.ChatSession, error) {
	rows, err := q.s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions
		WHERE status != ? ORDER BY created_at, queue_position`, domain.StatusInactive.String())
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close active sessions rows", "error", closeErr)
		}
	}()

	var sessions []domain.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}
	return sessions, nil
}

// SQLiteAgentStore implements AgentStore on a SQLiteStore.
type SQLiteAgentStore struct {
	s *SQLiteStore
}

const agentColumns = `agent_id, name, seniority, on_shift, active_session_ids`

func scanAgent(row rowScanner) (domain.Agent, error) {
	var agent domain.Agent
	var seniority, activeJSON string

	if err := row.Scan(&agent.ID, &agent.Name, &seniority, &agent.OnShift, &activeJSON); err != nil {
		return domain.Agent{}, err
	}
	parsed, err := domain.ParseSeniority(seniority)
	if err != nil {
		return domain.Agent{}, err
	}
	agent.Seniority = parsed

	var ids []string
	if err := json.Unmarshal([]byte(activeJSON), &ids); err != nil {
		return domain.Agent{}, fmt.Errorf("decode active sessions for %s: %w", agent.ID, err)
	}
	agent.ActiveSessionIDs = make(map[string]bool, len(ids))
	for _, id := range ids {
		agent.ActiveSessionIDs[id] = true
	}
	return agent, nil
}

func encodeActive(ids map[string]bool) (string, error) {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode active sessions: %w", err)
	}
	return string(data), nil
}

// Seed inserts agents that are not yet present.
func (a *SQLiteAgentStore) Seed(ctx context.Context, agents []domain.Agent) error {
	a.s.agentMu.Lock()
	defer a.s.agentMu.Unlock()

	for i, agent := range agents {
		active, err := encodeActive(agent.ActiveSessionIDs)
		if err != nil {
			return err
		}
		if _, err := a.s.exec(ctx, "seed agent", `
			INSERT INTO agents (`+agentColumns+`, seed_order) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO NOTHING`,
			agent.ID, agent.Name, agent.Seniority.String(), agent.OnShift, active, i); err != nil {
			return err
		}
	}
	return nil
}

// ListAll returns every agent in seed order.
func (a *SQLiteAgentStore) ListAll(ctx context.Context) ([]domain.Agent, error) {
	rows, err := a.s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY seed_order, agent_id`)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// ListAvailable returns on-shift agents with spare capacity.
func (a *SQLiteAgentStore) ListAvailable(ctx context.Context) ([]domain.Agent, error) {
	all, err := a.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Agent
	for _, agent := range all {
		if agent.IsAvailable() {
			out = append(out, agent)
		}
	}
	return out, nil
}

// Get returns the agent by id.
func (a *SQLiteAgentStore) Get(ctx context.Context, id string) (domain.Agent, error) {
	row := a.s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Agent{}, ErrNotFound
	}
	if err != nil {
		return domain.Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	return agent, nil
}

// Update replaces the stored agent.
func (a *SQLiteAgentStore) Update(ctx context.Context, agent domain.Agent) error {
	a.s.agentMu.Lock()
	defer a.s.agentMu.Unlock()

	active, err := encodeActive(agent.ActiveSessionIDs)
	if err != nil {
		return err
	}
	res, err := a.s.exec(ctx, "update agent", `
		UPDATE agents SET name = ?, seniority = ?, on_shift = ?, active_session_ids = ?
		WHERE agent_id = ?`,
		agent.Name, agent.Seniority.String(), agent.OnShift, active, agent.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

var (
	_ SessionStore = (*SQLiteSessionStore)(nil)
	_ AgentStore   = (*SQLiteAgentStore)(nil)
)
