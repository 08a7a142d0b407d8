package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/chatqueue/internal/chat"
	"github.com/ashureev/chatqueue/internal/clock"
	"github.com/ashureev/chatqueue/internal/roster"
	"github.com/ashureev/chatqueue/internal/shift"
	"github.com/ashureev/chatqueue/internal/store"
)

// Saturday 03:00 UTC: team C (capacity 12, maxMainQueueSize 18), outside office hours.
var saturdayNight = time.Date(2023, 11, 4, 3, 0, 0, 0, time.UTC)

type stubHealth struct {
	serving bool
	pingErr error
}

func (s *stubHealth) Serving() bool              { return s.serving }
func (s *stubHealth) Ping(context.Context) error { return s.pingErr }

func newTestRouter(t *testing.T) (http.Handler, *store.MemorySessionStore) {
	t.Helper()
	r := roster.Default()
	sessions := store.NewMemorySessionStore()
	agents := store.NewMemoryAgentStore(r.SeedAgents()...)
	policy := shift.NewPolicy(r, agents, sessions, clock.NewManual(saturdayNight), shift.DefaultOverflowQueueBuffer)
	return NewRouter(RouterConfig{
		Chat:        chat.NewService(sessions, policy),
		Health:      NewHealthHandler(nil, &stubHealth{serving: true}),
		CORSOrigins: []string{"*"},
		IsDev:       true,
	}), sessions
}

func do(t *testing.T, h http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func TestStartChatEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res chat.StartChatResult
	decode(t, rec, &res)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, res.QueuePosition)

	rec = do(t, h, http.MethodGet, "/api/chat/session/"+res.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Found   bool `json:"found"`
		Session struct {
			SessionID string `json:"sessionId"`
			UserID    string `json:"userId"`
			Status    string `json:"status"`
		} `json:"session"`
	}
	decode(t, rec, &got)
	assert.True(t, got.Found)
	assert.Equal(t, res.SessionID, got.Session.SessionID)
	assert.Equal(t, "alice", got.Session.UserID)
	assert.Equal(t, "Queued", got.Session.Status)
}

func TestStartChatFallsBackToAnonymousIdentity(t *testing.T) {
	h, sessions := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/chat/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res chat.StartChatResult
	decode(t, rec, &res)

	s, err := sessions.Get(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.UserID, "anon_"), s.UserID)
}

func TestStartChatRejectsWhenFull(t *testing.T) {
	h, _ := newTestRouter(t)
	for i := 0; i < 18; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"u"}`).Code)
	}

	rec := do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"u"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var res chat.StartChatResult
	decode(t, rec, &res)
	assert.False(t, res.Success)
	assert.Equal(t, chat.QueueFullMessage, res.ErrorMessage)
}

func TestStartChatRejectsMalformedBody(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/api/chat/start", `{"userId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPollEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	var res chat.StartChatResult
	decode(t, do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"alice"}`), &res)

	rec := do(t, h, http.MethodPost, "/api/chat/poll/"+res.SessionID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/chat/poll/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, chat.SessionNotFoundMessage, body["error"])
}

func TestSessionEndpointNotFound(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/api/chat/session/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, false, body["found"])
}

func TestStatusEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"alice"}`)

	rec := do(t, h, http.MethodGet, "/api/chat/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]interface{}
	decode(t, rec, &st)
	assert.Equal(t, 1.0, st["currentQueueSize"])
	assert.Equal(t, 18.0, st["maxQueueSize"])
	assert.Equal(t, false, st["isOfficeHours"])
	assert.Equal(t, false, st["overflowActive"])
	assert.Contains(t, st, "totalCapacity")
}

func TestHealthEndpoint(t *testing.T) {
	tests := map[string]struct {
		health *stubHealth
		want   int
	}{
		"healthy":             {&stubHealth{serving: true}, http.StatusOK},
		"monitor not serving": {&stubHealth{serving: false}, http.StatusServiceUnavailable},
		"database down":       {&stubHealth{serving: true, pingErr: errors.New("closed")}, http.StatusServiceUnavailable},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Health: NewHealthHandler(tc.health, tc.health)})
			rec := do(t, h, http.MethodGet, "/health", "")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/api/chat/start", `{"userId":"alice"}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatqueue_admissions_total")
}
