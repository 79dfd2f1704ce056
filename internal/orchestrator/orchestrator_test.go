package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/errors"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/leaderboard"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/lease"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/orchestrator"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/ratelimit"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/resilience"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/session"
)

func TestJoin_CreatesSessionAndAnnounces(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()

	snap, err := f.join(ctx, "s1", "host", "alice")
	require.NoError(t, err)
	assert.Equal(t, "host", snap.Session.HostID)
	assert.Equal(t, "lobby", snap.Phase)

	snap, err = f.join(ctx, "s1", "u2", "bob")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "alice", snap.Participants[0].Username, "join order preserved")

	assert.Equal(t, 2, f.bc.count(orchestrator.WireSessionEvent))

	// Rejoining announces nothing new.
	_, err = f.join(ctx, "s1", "u2", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, f.bc.count(orchestrator.WireSessionEvent))
}

func TestJoin_UnknownSessionWithoutQuiz(t *testing.T) {
	f := makeFixture(t)

	_, err := f.orc.Join(context.Background(), orchestrator.JoinRequest{
		SessionID: "nope",
		UserID:    "u1",
		Username:  "alice",
	})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestJoin_RefusesSessionOwnedByLiveProcess(t *testing.T) {
	f := makeFixture(t)

	f.startTwo(t, "s1")
	require.Equal(t, domain.SessionActive, f.store.status("s1"))

	// A latecomer lands on a process that does not own the session. It must
	// be turned away, not adopt a second copy.
	procB, _ := f.secondProcess(t)
	_, err := procB.Join(context.Background(), orchestrator.JoinRequest{
		SessionID: "s1",
		UserID:    "u3",
		Username:  "carol",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnavailable))

	// The durable record never regresses while the owner is alive.
	assert.Equal(t, domain.SessionActive, f.store.status("s1"))
}

func TestJoin_AdoptsSessionAfterOwnerDies(t *testing.T) {
	f := makeFixture(t)

	f.startTwo(t, "s1")
	require.Equal(t, domain.SessionActive, f.store.status("s1"))

	// The owner's lease runs out unrefreshed, as after a crash.
	f.mr.FastForward(time.Minute)

	procB, _ := f.secondProcess(t)
	snap, err := procB.Join(context.Background(), orchestrator.JoinRequest{
		SessionID: "s1",
		UserID:    "u3",
		Username:  "carol",
	})
	require.NoError(t, err)

	// The mid-flight answer window died with the owner; the lobby reopens
	// from the durable record.
	assert.Equal(t, "lobby", snap.Phase)
	assert.Equal(t, "host", snap.Session.HostID)
	assert.Equal(t, domain.SessionWaiting, f.store.status("s1"))
}

func TestJoin_RetriesTransientStoreFailure(t *testing.T) {
	f := makeFixture(t, withStoreFailures(2))

	snap, err := f.join(context.Background(), "s1", "host", "alice")
	require.NoError(t, err, "two transient failures are within the retry limit")
	assert.Equal(t, "host", snap.Session.HostID)
}

func TestJoin_StoreOutageSurfacesAsUnavailable(t *testing.T) {
	f := makeFixture(t, withStoreFailures(100))

	_, err := f.join(context.Background(), "s1", "host", "alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnavailable))
}

func TestReady_AllReadyStartsSession(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()

	mustJoin(t, f, "s1", "host", "alice")
	mustJoin(t, f, "s1", "u2", "bob")

	require.NoError(t, f.orc.Ready(ctx, "s1", "host"))
	assert.Equal(t, 0, f.bc.count(orchestrator.WireQuestionStarted),
		"one ready out of two must not start")

	require.NoError(t, f.orc.Ready(ctx, "s1", "u2"))

	assert.Equal(t, 1, f.bc.count(orchestrator.WireQuestionStarted))
	started := f.bc.last(orchestrator.WireQuestionStarted).(orchestrator.QuestionStartedPayload)
	assert.Equal(t, "q1", started.Question.QuestionID)
	assert.Equal(t, 0, started.Index)
	assert.Equal(t, 2, started.Total)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), started.Deadline)
}

func TestStartSession_HostOnly(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()

	mustJoin(t, f, "s1", "host", "alice")
	mustJoin(t, f, "s1", "u2", "bob")

	err := f.orc.StartSession(ctx, "s1", "u2")
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	require.NoError(t, f.orc.StartSession(ctx, "s1", "host"))
	assert.Equal(t, 1, f.bc.count(orchestrator.WireQuestionStarted))
}

// Two participants play one question through: a correct answer after 5s of a
// 30s window earns 867 of 1000 base points, a wrong one earns nothing, and
// the second submission closes the question.
func TestSubmitAnswer_ScoresAndClosesOnLastAnswer(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	res, err := f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "host",
		QuestionID: "q1",
		Answer:     "A",
		TimeSpent:  5 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, int64(867), res.Points)
	assert.Equal(t, int64(867), res.TotalScore)
	assert.Equal(t, 0, f.bc.count(orchestrator.WireQuestionEnded),
		"one answer of two must not close")

	res, err = f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "u2",
		QuestionID: "q1",
		Answer:     "B",
		TimeSpent:  10 * time.Second,
	})
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Zero(t, res.Points)

	require.Equal(t, 1, f.bc.count(orchestrator.WireQuestionEnded))
	ended := f.bc.last(orchestrator.WireQuestionEnded).(orchestrator.QuestionEndedPayload)
	assert.Equal(t, "q1", ended.QuestionID)
	assert.Equal(t, "A", ended.CorrectAnswer, "correct answer revealed only after close")
	assert.Equal(t, string(domain.CloseAllAnswered), ended.Reason)

	require.Len(t, ended.Leaderboard.Entries, 2)
	assert.Equal(t, "host", ended.Leaderboard.Entries[0].UserID)
	assert.Equal(t, int64(867), ended.Leaderboard.Entries[0].Score)
	assert.Equal(t, "u2", ended.Leaderboard.Entries[1].UserID)
	assert.Zero(t, ended.Leaderboard.Entries[1].Score)
}

func TestSubmitAnswer_DuplicateRejected(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	req := orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "host",
		QuestionID: "q1",
		Answer:     "A",
		TimeSpent:  5 * time.Second,
	}
	_, err := f.orc.SubmitAnswer(ctx, req)
	require.NoError(t, err)

	_, err = f.orc.SubmitAnswer(ctx, req)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists))
	assert.Equal(t, 1, f.bc.count(orchestrator.WireScoreUpdate))
}

func TestTimeout_ClosesQuestionOnce(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	f.clock.Advance(30 * time.Second)

	require.Eventually(t, func() bool {
		return f.bc.count(orchestrator.WireQuestionTimeout) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ended := f.bc.last(orchestrator.WireQuestionTimeout).(orchestrator.QuestionEndedPayload)
	assert.Equal(t, string(domain.CloseTimeout), ended.Reason)

	// Answers arriving after the deadline are rejected.
	_, err := f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "host",
		QuestionID: "q1",
		Answer:     "A",
		TimeSpent:  31 * time.Second,
	})
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
}

func TestTimeout_AfterAllAnsweredIsNoop(t *testing.T) {
	f := makeFixture(t)
	f.startTwo(t, "s1")
	f.answerBoth(t, "s1", "q1")

	require.Equal(t, 1, f.bc.count(orchestrator.WireQuestionEnded))

	f.clock.Advance(time.Minute)

	assert.Never(t, func() bool {
		return f.bc.count(orchestrator.WireQuestionTimeout) > 0
	}, 300*time.Millisecond, 20*time.Millisecond,
		"fired advance guard must swallow the late timer")
}

func TestAdvance_RunsSessionToCompletion(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	f.answerBoth(t, "s1", "q1")

	err := f.orc.Advance(ctx, "s1", "u2")
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition), "advance is host-only")

	require.NoError(t, f.orc.Advance(ctx, "s1", "host"))
	started := f.bc.last(orchestrator.WireQuestionStarted).(orchestrator.QuestionStartedPayload)
	assert.Equal(t, "q2", started.Question.QuestionID)
	assert.Equal(t, 1, started.Index)

	f.answerBoth(t, "s1", "q2")
	require.NoError(t, f.orc.Advance(ctx, "s1", "host"))

	require.Equal(t, 1, f.bc.count(orchestrator.WireQuizCompleted))
	done := f.bc.last(orchestrator.WireQuizCompleted).(orchestrator.QuizCompletedPayload)
	require.Len(t, done.Leaderboard.Entries, 2)
	assert.Equal(t, "host", done.Leaderboard.Entries[0].UserID)
	assert.Equal(t, int64(2*867), done.Leaderboard.Entries[0].Score)
	assert.Equal(t, "u2", done.Leaderboard.Entries[1].UserID)
	assert.Equal(t, int64(2*840), done.Leaderboard.Entries[1].Score)

	assert.Equal(t, domain.SessionCompleted, f.store.status("s1"))

	// The archived session rejects late joiners.
	_, err = f.join(ctx, "s1", "u3", "carol")
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))
}

func TestEndSession_ClosesLiveQuestionAndCompletes(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	err := f.orc.EndSession(ctx, "s1", "u2")
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	require.NoError(t, f.orc.EndSession(ctx, "s1", "host"))

	require.Equal(t, 1, f.bc.count(orchestrator.WireQuestionEnded))
	ended := f.bc.last(orchestrator.WireQuestionEnded).(orchestrator.QuestionEndedPayload)
	assert.Equal(t, string(domain.CloseForced), ended.Reason)

	assert.Equal(t, 1, f.bc.count(orchestrator.WireQuizCompleted))
	assert.Equal(t, domain.SessionCompleted, f.store.status("s1"))
}

func TestResync_ReplaysLiveStateWithoutAnswer(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	_, err := f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "host",
		QuestionID: "q1",
		Answer:     "A",
		TimeSpent:  5 * time.Second,
	})
	require.NoError(t, err)

	published := f.bc.total()
	snap, err := f.orc.Resync(ctx, "s1", "host")
	require.NoError(t, err)

	assert.Equal(t, "question_live", snap.Phase)
	require.NotNil(t, snap.Live)
	assert.Equal(t, "q1", snap.Live.Question.QuestionID)
	assert.True(t, snap.Live.Answered)
	assert.Equal(t, published, f.bc.total(), "resync is a reply, not a push")

	snap, err = f.orc.Resync(ctx, "s1", "u2")
	require.NoError(t, err)
	assert.False(t, snap.Live.Answered)
}

func TestDisconnect_ClosesQuestionWhenOnlyStragglerLeaves(t *testing.T) {
	f := makeFixture(t)
	ctx := context.Background()
	f.startTwo(t, "s1")

	_, err := f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
		SessionID:  "s1",
		UserID:     "host",
		QuestionID: "q1",
		Answer:     "A",
		TimeSpent:  5 * time.Second,
	})
	require.NoError(t, err)

	f.orc.Disconnect("s1", "u2")

	assert.Equal(t, 1, f.bc.count(orchestrator.WireQuestionEnded),
		"everyone still taking has answered")

	left := f.bc.last(orchestrator.WireSessionEvent).(orchestrator.SessionEventPayload)
	assert.Equal(t, orchestrator.SessionEventLeft, left.Type)
}

func TestJoin_RateLimited(t *testing.T) {
	f := makeFixture(t, withJoinQuota(2))
	ctx := context.Background()

	mustJoin(t, f, "s1", "host", "alice")
	mustJoin(t, f, "s2", "host", "alice")

	_, err := f.join(ctx, "s3", "host", "alice")
	assert.True(t, errors.Is(err, errors.CodeResourceExhausted))

	// Other users keep their own quota.
	mustJoin(t, f, "s1", "u2", "bob")
}

// --- fixture ---

type fixture struct {
	orc   *orchestrator.Orchestrator
	state *session.Manager
	store *memSessions
	bc    *recorder
	clock *clockwork.FakeClock
	mr    *miniredis.Miniredis
	redis redis.UniversalClient
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	joinQuota     int
	storeFailures int
}

func withJoinQuota(n int) fixtureOption {
	return func(c *fixtureConfig) { c.joinQuota = n }
}

// withStoreFailures makes the session store fail its next n calls with a
// transport error before behaving again.
func withStoreFailures(n int) fixtureOption {
	return func(c *fixtureConfig) { c.storeFailures = n }
}

func makeFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var fc fixtureConfig
	for _, opt := range opts {
		opt(&fc)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	var limiter *ratelimit.Limiter
	if fc.joinQuota > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			Redis:  client,
			Prefix: "test",
			Actions: map[string]ratelimit.ActionConfig{
				orchestrator.ActionJoin: {Window: time.Minute, Quota: fc.joinQuota},
			},
		})
	}

	f := &fixture{
		state: session.NewManager(),
		store: newMemSessions(),
		bc:    &recorder{},
		clock: clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		mr:    mr,
		redis: client,
	}

	var store session.Store = f.store
	if fc.storeFailures > 0 {
		store = &flakySessions{memSessions: f.store, fail: fc.storeFailures}
	}

	f.orc = orchestrator.New(orchestrator.Config{
		State:    f.state,
		Sessions: store,
		Quizzes:  fakeQuizzes{},
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			Store:  newMemLeaderboards(),
			Redis:  client,
			Prefix: "test",
		}),
		Limiter:      limiter,
		Broadcast:    f.bc,
		Clock:        f.clock,
		Leases:       lease.NewKeeper(lease.Config{Redis: client, Prefix: "test"}),
		StoreWrapper: testStoreWrapper(),
	})
	t.Cleanup(f.orc.Stop)

	return f
}

// testStoreWrapper retries with negligible backoff so failure-path tests do
// not sleep.
func testStoreWrapper() *resilience.Wrapper {
	return resilience.New("session-db", resilience.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Nanosecond,
	})
}

// secondProcess builds another orchestrator on the fixture's durable store
// and coordination Redis, the way a second engine process would see them.
func (f *fixture) secondProcess(t *testing.T) (*orchestrator.Orchestrator, *recorder) {
	t.Helper()

	bc := &recorder{}
	orc := orchestrator.New(orchestrator.Config{
		State:    session.NewManager(),
		Sessions: f.store,
		Quizzes:  fakeQuizzes{},
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			Store:  newMemLeaderboards(),
			Redis:  f.redis,
			Prefix: "test",
		}),
		Broadcast:    bc,
		Clock:        f.clock,
		Leases:       lease.NewKeeper(lease.Config{Redis: f.redis, Prefix: "test"}),
		StoreWrapper: testStoreWrapper(),
	})
	t.Cleanup(orc.Stop)

	return orc, bc
}

func (f *fixture) join(ctx context.Context, sessionID, userID, username string) (*orchestrator.Snapshot, error) {
	return f.orc.Join(ctx, orchestrator.JoinRequest{
		SessionID: sessionID,
		QuizID:    "quiz-1",
		UserID:    userID,
		Username:  username,
	})
}

func mustJoin(t *testing.T, f *fixture, sessionID, userID, username string) {
	t.Helper()
	_, err := f.join(context.Background(), sessionID, userID, username)
	require.NoError(t, err)
}

// startTwo gets a two-participant session to the first live question.
func (f *fixture) startTwo(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()

	mustJoin(t, f, sessionID, "host", "alice")
	mustJoin(t, f, sessionID, "u2", "bob")
	require.NoError(t, f.orc.Ready(ctx, sessionID, "host"))
	require.NoError(t, f.orc.Ready(ctx, sessionID, "u2"))
	require.Equal(t, 1, f.bc.count(orchestrator.WireQuestionStarted))
}

func (f *fixture) answerBoth(t *testing.T, sessionID, questionID string) {
	t.Helper()
	ctx := context.Background()

	for userID, timeSpent := range map[string]time.Duration{
		"host": 5 * time.Second,
		"u2":   6 * time.Second,
	} {
		_, err := f.orc.SubmitAnswer(ctx, orchestrator.SubmitAnswerRequest{
			SessionID:  sessionID,
			UserID:     userID,
			QuestionID: questionID,
			Answer:     "A",
			TimeSpent:  timeSpent,
		})
		require.NoError(t, err)
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
		Questions: []domain.Question{
			question("q1"),
			question("q2"),
		},
	}, nil
}

func question(id string) domain.Question {
	return domain.Question{
		QuestionID:   id,
		QuestionText: "capital of France?",
		Options: []domain.Option{
			{OptionID: "A", OptionText: "Paris"},
			{OptionID: "B", OptionText: "Lyon"},
		},
		CorrectAnswer: "A",
		TimeLimit:     30 * time.Second,
		Points:        1000,
	}
}

// recorder captures fan-out publishes in order. The timeout goroutine
// publishes concurrently with test assertions, hence the lock.
type recorder struct {
	mu     sync.Mutex
	events []published
}

type published struct {
	event string
	data  any
}

func (r *recorder) Publish(_ context.Context, _ string, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, data: data})
	return nil
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.events {
		if p.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i].data
		}
	}
	return nil
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
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

	if _, ok := m.sessions[ss.SessionID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session exists: %s", ss.SessionID))
	}
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

	ss, ok := m.sessions[sessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	ss.Status = status
	ss.EndTime = endTime
	m.sessions[sessionID] = ss
	return nil
}

// flakySessions fails the next fail calls with a transport error, then
// delegates.
type flakySessions struct {
	*memSessions
	flakyMu sync.Mutex
	fail    int
}

func (f *flakySessions) Find(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := f.trip(); err != nil {
		return domain.Session{}, err
	}
	return f.memSessions.Find(ctx, sessionID)
}

func (f *flakySessions) Create(ctx context.Context, ss domain.Session) error {
	if err := f.trip(); err != nil {
		return err
	}
	return f.memSessions.Create(ctx, ss)
}

func (f *flakySessions) trip() error {
	f.flakyMu.Lock()
	defer f.flakyMu.Unlock()

	if f.fail > 0 {
		f.fail--
		return fmt.Errorf("connection reset by peer")
	}
	return nil
}

func (m *memSessions) status(sessionID string) domain.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID].Status
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
