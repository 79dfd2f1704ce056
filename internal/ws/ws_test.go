package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/auth"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/fanout"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/leaderboard"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/lease"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/orchestrator"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/session"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ws"
)

func TestHandler_RejectsBadCredential(t *testing.T) {
	f := makeServer(t)

	conn := f.dial(t, "garbage")
	defer conn.Close()

	env := readFrame(t, conn)
	assert.Equal(t, "error", env.Event)

	var e ws.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &e))
	assert.Equal(t, "Unauthenticated", e.Code)

	// The server hangs up right after the error event.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_SessionRoundTrip(t *testing.T) {
	f := makeServer(t)

	alice := f.dialAs(t, "u1", "alice")
	bob := f.dialAs(t, "u2", "bob")

	// Host joins and creates the session.
	data := alice.act(t, ws.ActionJoin, ws.JoinPayload{SessionID: "s1", QuizID: "quiz-1"})
	var snap orchestrator.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "u1", snap.Session.HostID)
	assert.Equal(t, "lobby", snap.Phase)

	bob.act(t, ws.ActionJoin, ws.JoinPayload{SessionID: "s1"})

	// The host sees bob arrive through the relay.
	env := alice.expectEvent(t, "sessionEvent")
	var se orchestrator.SessionEventPayload
	require.NoError(t, json.Unmarshal(env, &se))
	assert.Equal(t, orchestrator.SessionEventJoined, se.Type)

	alice.act(t, ws.ActionReady, ws.SessionRef{SessionID: "s1"})
	bob.act(t, ws.ActionReady, ws.SessionRef{SessionID: "s1"})

	// Everyone ready starts the session and the first question.
	env = alice.expectEvent(t, "questionStarted")
	var qs orchestrator.QuestionStartedPayload
	require.NoError(t, json.Unmarshal(env, &qs))
	assert.Equal(t, "q1", qs.Question.QuestionID)
	assert.NotContains(t, string(env), `"correct_answer"`)

	data = alice.act(t, ws.ActionSubmit, ws.SubmitPayload{
		SessionID:   "s1",
		QuestionID:  "q1",
		Answer:      "A",
		TimeSpentMs: 5000,
	})
	var res orchestrator.AnswerResult
	require.NoError(t, json.Unmarshal(data, &res))
	assert.True(t, res.Correct)
	assert.Equal(t, int64(867), res.Points)

	bob.act(t, ws.ActionSubmit, ws.SubmitPayload{
		SessionID:   "s1",
		QuestionID:  "q1",
		Answer:      "B",
		TimeSpentMs: 9000,
	})

	// Both answered: the question closes and reveals the answer.
	env = bob.expectEvent(t, "questionEnded")
	var qe orchestrator.QuestionEndedPayload
	require.NoError(t, json.Unmarshal(env, &qe))
	assert.Equal(t, "A", qe.CorrectAnswer)
	require.Len(t, qe.Leaderboard.Entries, 2)
	assert.Equal(t, "u1", qe.Leaderboard.Entries[0].UserID)

	// Host advances past the last question: the session completes.
	alice.act(t, ws.ActionAdvance, ws.SessionRef{SessionID: "s1"})
	env = alice.expectEvent(t, "quizCompleted")
	var done orchestrator.QuizCompletedPayload
	require.NoError(t, json.Unmarshal(env, &done))
	assert.Equal(t, int64(867), done.Leaderboard.Entries[0].Score)
}

func TestHandler_ActionFailuresAreWrapped(t *testing.T) {
	f := makeServer(t)

	alice := f.dialAs(t, "u1", "alice")

	resp := alice.actRaw(t, ws.ActionReady, ws.SessionRef{SessionID: "missing"})
	assert.False(t, *resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotFound", resp.Error.Code)

	resp = alice.actRaw(t, "bogus", nil)
	assert.False(t, *resp.Success)
	assert.Equal(t, "InvalidArgument", resp.Error.Code)
}

// --- fixture ---

type server struct {
	url string
	jwt *auth.JWT
}

func makeServer(t *testing.T) *server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	hub := ws.NewHub()
	relay := fanout.NewRelay(client, "test", hub.Deliver)
	hub.AttachRelay(relay)
	t.Cleanup(relay.Stop)

	orc := orchestrator.New(orchestrator.Config{
		State:    session.NewManager(),
		Sessions: newMemSessions(),
		Quizzes:  fakeQuizzes{},
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			Store:  newMemLeaderboards(),
			Redis:  client,
			Prefix: "test",
		}),
		Broadcast: fanout.NewPublisher(client, "test"),
		Leases:    lease.NewKeeper(lease.Config{Redis: client, Prefix: "test"}),
	})
	t.Cleanup(orc.Stop)

	jwt := auth.NewJWT("test-secret")
	handler := ws.NewHandler(ws.Config{
		Orchestrator: orc,
		Hub:          hub,
		Auth:         jwt,
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", handler.Serve)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &server{
		url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		jwt: jwt,
	}
}

func (s *server) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *server) dialAs(t *testing.T, userID, username string) *client {
	t.Helper()

	token, err := s.jwt.Sign(domain.User{UserID: userID, Username: username}, time.Minute)
	require.NoError(t, err)
	return &client{conn: s.dial(t, token)}
}

type client struct {
	conn *websocket.Conn
	// frames read while waiting for something else, kept for later matches
	backlog []frame
}

// frame is either an action response (Action/Success set) or a relayed
// session event (Event set).
type frame struct {
	Action  string           `json:"action"`
	Success *bool            `json:"success"`
	Error   *ws.ErrorPayload `json:"error"`
	Event   string           `json:"event"`
	Data    json.RawMessage  `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// act sends one action and returns the data of its successful response,
// buffering any session events that arrive first.
func (c *client) act(t *testing.T, action string, payload any) json.RawMessage {
	t.Helper()

	resp := c.actRaw(t, action, payload)
	require.NotNil(t, resp.Success)
	require.True(t, *resp.Success, "action %s failed: %+v", action, resp.Error)
	return resp.Data
}

func (c *client) actRaw(t *testing.T, action string, payload any) frame {
	t.Helper()

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		data = b
	}
	b, err := json.Marshal(ws.ClientMessage{Action: action, Data: data})
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, b))

	for {
		f := readFrame(t, c.conn)
		if f.Success != nil {
			return f
		}
		c.backlog = append(c.backlog, f)
	}
}

// expectEvent returns the next relayed event with the given name, checking
// the backlog first.
func (c *client) expectEvent(t *testing.T, event string) json.RawMessage {
	t.Helper()

	for i, f := range c.backlog {
		if f.Event == event {
			c.backlog = append(c.backlog[:i], c.backlog[i+1:]...)
			return f.Data
		}
	}

	for {
		f := readFrame(t, c.conn)
		if f.Event == event {
			return f.Data
		}
		c.backlog = append(c.backlog, f)
	}
}

type fakeQuizzes struct{}

func (fakeQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quizID != "quiz-1" {
		return domain.Quiz{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	return domain.Quiz{
		QuizID: "quiz-1",
		Title:  "capitals",
		Questions: []domain.Question{{
			QuestionID:   "q1",
			QuestionText: "capital of France?",
			Options: []domain.Option{
				{OptionID: "A", OptionText: "Paris"},
				{OptionID: "B", OptionText: "Lyon"},
			},
			CorrectAnswer: "A",
			TimeLimit:     30 * time.Second,
			Points:        1000,
		}},
	}, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]domain.Session)}
}

func (m *memSessions) Create(_ context.Context, ss domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[ss.SessionID] = ss
	return nil
}

func (m *memSessions) Find(_ context.Context, sessionID string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss, ok := m.sessions[sessionID]
	if !ok {
		return domain.Session{}, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	return ss, nil
}

func (m *memSessions) UpdateStatus(_ context.Context, sessionID string, status domain.SessionStatus, endTime *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss := m.sessions[sessionID]
	ss.Status = status
	ss.EndTime = endTime
	m.sessions[sessionID] = ss
	return nil
}

type memLeaderboards struct {
	mu      sync.Mutex
	entries map[string]map[string]domain.LeaderboardEntry
}

func newMemLeaderboards() *memLeaderboards {
	return &memLeaderboards{entries: make(map[string]map[string]domain.LeaderboardEntry)}
}

func (m *memLeaderboards) UpsertEntry(_ context.Context, sessionID string, e domain.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries[sessionID] == nil {
		m.entries[sessionID] = make(map[string]domain.LeaderboardEntry)
	}
	m.entries[sessionID][e.UserID] = e
	return nil
}

func (m *memLeaderboards) ListEntries(_ context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.LeaderboardEntry, 0, len(m.entries[sessionID]))
	for _, e := range m.entries[sessionID] {
		out = append(out, e)
	}
	return out, nil
}

func (m *memLeaderboards) Archive(_ context.Context, _ string) error {
	return nil
}
